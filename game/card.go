package game

// CardInstance is one physical card token in play. The printed card id is
// opaque to the core; metadata lookup lives outside this module.
type CardInstance struct {
	ID       uint64
	CardID   string
	Facedown bool

	counters    map[string]int
	attachments []uint64 // attached instance ids
}

func newCardInstance(id uint64, cardID string) *CardInstance {
	return &CardInstance{ID: id, CardID: cardID}
}

func (c *CardInstance) Counter(name string) int {
	return c.counters[name]
}

func (c *CardInstance) addCounter(name string, delta int) int {
	if c.counters == nil {
		c.counters = make(map[string]int, 2)
	}
	c.counters[name] += delta
	if c.counters[name] == 0 {
		delete(c.counters, name)
	}
	return c.counters[name]
}

func (c *CardInstance) attach(other uint64) {
	for _, id := range c.attachments {
		if id == other {
			return
		}
	}
	c.attachments = append(c.attachments, other)
}

// detach releases one attachment; other == 0 releases all of them.
func (c *CardInstance) detach(other uint64) {
	if other == 0 {
		c.attachments = nil
		return
	}
	for i, id := range c.attachments {
		if id == other {
			c.attachments = append(c.attachments[:i], c.attachments[i+1:]...)
			return
		}
	}
}
