package sendonce

// Factory captures one marker store (and shared options) so that many
// protocols over different mutate/check pairs reuse the same store wiring.
// It holds no behavior beyond forwarding.
type Factory struct {
	store MarkerStore
	opts  []Option
}

// NewFactory binds store once for every protocol made from this factory.
func NewFactory(store MarkerStore, opts ...Option) *Factory {
	return &Factory{
		store: store,
		opts:  opts,
	}
}

// Make builds a Protocol for one gateway pair, bound to the factory's store.
// It is a top-level function because Go methods cannot introduce type
// parameters.
func Make[P, R any](f *Factory, gateway Gateway[P, R]) *Protocol[P, R] {
	return New(f.store, gateway, f.opts...)
}
