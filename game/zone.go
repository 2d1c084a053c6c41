package game

// Zone is an ordered container of card instances scoped to one player.
type Zone struct {
	Ref   ZoneRef
	cards []*CardInstance
}

func newZone(owner uint64, kind ZoneKind) *Zone {
	return &Zone{Ref: ZoneRef{Owner: owner, Kind: kind}}
}

func (z *Zone) Size() int { return len(z.cards) }

func (z *Zone) card(index int) *CardInstance {
	if index < 0 || index >= len(z.cards) {
		return nil
	}
	return z.cards[index]
}

// top is index 0; library draws pop from the top.
func (z *Zone) top() *CardInstance { return z.card(0) }

func (z *Zone) indexOf(instanceID uint64) int {
	for i, c := range z.cards {
		if c.ID == instanceID {
			return i
		}
	}
	return -1
}

func (z *Zone) removeAt(index int) *CardInstance {
	c := z.cards[index]
	z.cards = append(z.cards[:index], z.cards[index+1:]...)
	return c
}

func (z *Zone) insertAt(index int, c *CardInstance) {
	if index < 0 || index > len(z.cards) {
		index = len(z.cards)
	}
	z.cards = append(z.cards, nil)
	copy(z.cards[index+1:], z.cards[index:])
	z.cards[index] = c
}

// reorder rearranges the zone to match the given instance-id order. The order
// must be a permutation of the current contents.
func (z *Zone) reorder(order []uint64) bool {
	if len(order) != len(z.cards) {
		return false
	}
	byID := make(map[uint64]*CardInstance, len(z.cards))
	for _, c := range z.cards {
		byID[c.ID] = c
	}
	next := make([]*CardInstance, 0, len(order))
	for _, id := range order {
		c, ok := byID[id]
		if !ok {
			return false
		}
		delete(byID, id)
		next = append(next, c)
	}
	z.cards = next
	return true
}
