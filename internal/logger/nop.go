package logger

// nop is a Logger that discards everything. Used as the context fallback and
// in tests that do not care about log output.
type nop struct{}

// NewNop returns a Logger that discards all output.
func NewNop() Logger { return nop{} }

func (nop) Debug(string, ...any)    {}
func (nop) Info(string, ...any)     {}
func (nop) Warn(string, ...any)     {}
func (nop) Error(string, ...any)    {}
func (nop) With(...any) Logger      { return nop{} }
func (nop) WithComponent(string) Logger { return nop{} }
func (nop) WithError(error) Logger  { return nop{} }
func (nop) Sync() error             { return nil }
