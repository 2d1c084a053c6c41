package game

import (
	"encoding/json"
	"fmt"
)

// Enum values cross the wire as their dictionary names, not raw bytes.

var stateByName = reverseDict(StateDictionary)
var phaseByName = reverseDict(PhaseDictionary)

func reverseDict[K comparable](dict map[K]string) map[string]K {
	out := make(map[string]K, len(dict))
	for k, name := range dict {
		out[name] = k
	}
	return out
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *State) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}
	v, ok := stateByName[name]
	if !ok {
		return fmt.Errorf("unknown state %q", name)
	}
	*s = v
	return nil
}

func (p Phase) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *Phase) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}
	v, ok := phaseByName[name]
	if !ok {
		return fmt.Errorf("unknown phase %q", name)
	}
	*p = v
	return nil
}

func (z ZoneKind) MarshalJSON() ([]byte, error) { return json.Marshal(z.String()) }

func (z *ZoneKind) UnmarshalJSON(raw []byte) error {
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return err
	}
	v, ok := zoneKindByName[name]
	if !ok {
		return fmt.Errorf("unknown zone kind %q", name)
	}
	*z = v
	return nil
}
