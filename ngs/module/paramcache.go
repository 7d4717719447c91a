package module

import "github.com/cwbudde/algo-ngs/ngs/param"

type decodable[P any] interface {
	*P
	UnmarshalBinary(blob []byte) error
	Validate() error
}

// paramCache keeps the decoded form of a slot's storage until its version moves.
type paramCache[P any, PP decodable[P]] struct {
	primed  bool
	version uint64
	value   P
	err     error
	def     P
}

func newParamCache[P any, PP decodable[P]](def P) paramCache[P, PP] {
	return paramCache[P, PP]{def: def}
}

// load returns the current parameters. An empty storage yields the defaults.
// A decode or range error is sticky until the next successful set.
func (c *paramCache[P, PP]) load(s *param.Storage) (P, bool, error) {
	if c.primed && s.Version() == c.version {
		return c.value, false, c.err
	}

	c.primed = true
	c.version = s.Version()
	c.value = c.def
	c.err = nil

	if s.Len() > 0 {
		c.err = PP(&c.value).UnmarshalBinary(s.View())
	}

	if c.err == nil {
		c.err = PP(&c.value).Validate()
	}

	return c.value, true, c.err
}
