package terminal

import (
	"strconv"

	"go.bryk.io/x/cargonetsim/internal/graph"
)

// Transportation modes recognized by the terminal graph server.
const (
	ModeAny   = -1
	ModeShip  = 0
	ModeTruck = 1
	ModeTrain = 2
)

// Terminal describes one terminal registered on the graph server. The first
// name is canonical; the rest are aliases.
type Terminal struct {
	Names      []string
	Config     map[string]interface{}
	Interfaces map[int][]int
	Region     string
}

// CanonicalName returns the terminal's primary name.
func (t Terminal) CanonicalName() string {
	if len(t.Names) == 0 {
		return ""
	}
	return t.Names[0]
}

// Aliases returns every non-canonical name.
func (t Terminal) Aliases() []string {
	if len(t.Names) < 2 {
		return nil
	}
	return t.Names[1:]
}

func (t Terminal) toJSON() map[string]interface{} {
	names := make([]interface{}, len(t.Names))
	for i, n := range t.Names {
		names[i] = n
	}
	interfaces := make(map[string]interface{}, len(t.Interfaces))
	for iface, modes := range t.Interfaces {
		ms := make([]interface{}, len(modes))
		for i, m := range modes {
			ms[i] = m
		}
		interfaces[strconv.Itoa(iface)] = ms
	}
	out := map[string]interface{}{
		"terminal_names":   names,
		"custom_config":    t.Config,
		"terminal_interfaces": interfaces,
	}
	if t.Region != "" {
		out["region"] = t.Region
	}
	return out
}

// Route is a directed connection between two terminals for one mode.
type Route struct {
	ID         string
	Start      string
	End        string
	Mode       int
	Attributes map[string]interface{}
}

func (r Route) toJSON() map[string]interface{} {
	return map[string]interface{}{
		"route_id":       r.ID,
		"start_terminal": r.Start,
		"end_terminal":   r.End,
		"mode":           r.Mode,
		"attributes":     r.Attributes,
	}
}

func (r Route) segment() graph.Segment {
	cost := 1.0
	if r.Attributes != nil {
		if v, ok := r.Attributes["cost"]; ok {
			cost = asFloat(v)
		}
	}
	attrs := make(map[string]interface{}, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	return graph.Segment{
		ID:         r.ID,
		From:       r.Start,
		To:         r.End,
		Mode:       r.Mode,
		Cost:       cost,
		Attributes: attrs,
	}
}

// PathSegment is one leg of a path-finding result.
type PathSegment struct {
	ID         string
	Start      string
	End        string
	Mode       int
	Attributes map[string]interface{}
}

// Path is a full path-finding result between two terminals.
type Path struct {
	ID           int
	TotalCost    float64
	EdgeCost     float64
	TerminalCost float64
	Terminals    []string
	Segments     []PathSegment
}

// pathFromMap decodes one path object from a pathFound event payload.
func pathFromMap(data map[string]interface{}) Path {
	p := Path{
		ID:           int(asFloat(data["path_id"])),
		TotalCost:    asFloat(data["total_path_cost"]),
		EdgeCost:     asFloat(data["total_edge_costs"]),
		TerminalCost: asFloat(data["total_terminal_costs"]),
	}
	if terminals, ok := data["terminals_in_path"].([]interface{}); ok {
		for _, t := range terminals {
			switch v := t.(type) {
			case string:
				p.Terminals = append(p.Terminals, v)
			case map[string]interface{}:
				p.Terminals = append(p.Terminals, asString(v["terminal"]))
			}
		}
	}
	if segments, ok := data["path_segments"].([]interface{}); ok {
		for _, s := range segments {
			seg, ok := s.(map[string]interface{})
			if !ok {
				continue
			}
			attrs, _ := seg["attributes"].(map[string]interface{})
			p.Segments = append(p.Segments, PathSegment{
				ID:         asString(seg["path_segment_id"]),
				Start:      asString(seg["start_terminal"]),
				End:        asString(seg["end_terminal"]),
				Mode:       int(asFloat(seg["mode"])),
				Attributes: attrs,
			})
		}
	}
	return p
}

// pathFromGraph converts a locally computed graph path into the result type.
func pathFromGraph(id int, gp graph.Path) Path {
	p := Path{
		ID:        id,
		TotalCost: gp.Cost,
		EdgeCost:  gp.Cost,
		Terminals: gp.Terminals,
	}
	for _, seg := range gp.Segments {
		p.Segments = append(p.Segments, PathSegment{
			ID:         seg.ID,
			Start:      seg.From,
			End:        seg.To,
			Mode:       seg.Mode,
			Attributes: seg.Attributes,
		})
	}
	return p
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
