package ftptree

import (
	"sort"
	"strings"
)

// Capabilities is the set of features a server advertises in its FEAT reply.
// It is filled on first use and then cached until Invalidate is called,
// which the session owner should do after reconnecting.
type Capabilities struct {
	exec   Executor
	loaded bool
	feats  map[string]string
}

// NewCapabilities returns an empty, not yet loaded capability set for exec.
func NewCapabilities(exec Executor) *Capabilities {
	return &Capabilities{exec: exec}
}

func (c *Capabilities) load() error {
	if c.loaded {
		return nil
	}

	feats, err := c.exec.Features()
	if err != nil {
		if IsTransport(err) {
			return classify("feat", "", err)
		}
		// A server without FEAT advertises nothing.
		feats = nil
	}

	c.feats = make(map[string]string, len(feats))
	for name, params := range feats {
		c.feats[strings.ToUpper(name)] = params
	}
	c.loaded = true
	return nil
}

// Has reports whether the server advertises name. The comparison is
// case-insensitive.
func (c *Capabilities) Has(name string) (bool, error) {
	if err := c.load(); err != nil {
		return false, err
	}
	_, ok := c.feats[strings.ToUpper(name)]
	return ok, nil
}

// Params returns the parameters advertised with a feature, e.g. the fact
// list of MLST.
func (c *Capabilities) Params(name string) (string, bool, error) {
	if err := c.load(); err != nil {
		return "", false, err
	}
	p, ok := c.feats[strings.ToUpper(name)]
	return p, ok, nil
}

// Names returns the advertised feature names in sorted order.
func (c *Capabilities) Names() ([]string, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.feats))
	for name := range c.feats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// featureCache is implemented by executors that keep their own copy of the
// FEAT reply, such as *ftp.Client.
type featureCache interface {
	InvalidateFeatures()
}

// Invalidate drops the cached set so the next query issues FEAT again. If
// the executor caches FEAT itself, that cache is dropped too.
func (c *Capabilities) Invalidate() {
	c.loaded = false
	c.feats = nil
	if fc, ok := c.exec.(featureCache); ok {
		fc.InvalidateFeatures()
	}
}

// require fails with ErrCapabilityUnavailable unless name is advertised.
func (c *Capabilities) require(op, path, name string) error {
	ok, err := c.Has(name)
	if err != nil {
		return err
	}
	if !ok {
		return &OpError{Op: op, Path: path, Kind: ErrCapabilityUnavailable, Err: errFeature(name)}
	}
	return nil
}

type errFeature string

func (e errFeature) Error() string {
	return string(e) + " not in FEAT reply"
}
