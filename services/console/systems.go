package console

import (
	"context"
	"fmt"
)

const systemsPath = "/connector/Systems"

// System is one entry of the device connector's system report. Only the fields
// printed by the inspect command are typed; everything is kept in Raw.
type System struct {
	Raw map[string]any
}

// Field returns a top-level value rendered as a string, or "" when absent.
func (s System) Field(name string) string {
	v, ok := s.Raw[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Systems returns the device connector's system report. It is diagnostic only.
func (c *Client) Systems(ctx context.Context, session *Session) ([]System, error) {
	if err := c.checkSession(session, sessionAddress(session)); err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := c.get(ctx, session, systemsPath, &raw); err != nil {
		return nil, err
	}

	systems := make([]System, 0, len(raw))
	for _, entry := range raw {
		systems = append(systems, System{Raw: entry})
	}
	return systems, nil
}

func sessionAddress(s *Session) string {
	if s == nil {
		return ""
	}
	return s.Address
}
