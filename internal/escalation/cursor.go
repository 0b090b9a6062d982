package escalation

// Cursor walks a sorted batch of escalations with one row of lookahead.
type Cursor struct {
	rows []*Escalation
	pos  int
}

// NewCursor creates a cursor positioned before the first row.
func NewCursor(rows []*Escalation) *Cursor {
	return &Cursor{rows: rows, pos: -1}
}

// Next advances to the next row and reports whether one exists.
func (c *Cursor) Next() bool {
	if c.pos < len(c.rows) {
		c.pos++
	}
	return c.pos < len(c.rows)
}

// Current returns the row the cursor is positioned on.
func (c *Cursor) Current() *Escalation {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

// Peek returns the row after the current one, or nil at the end of the batch.
func (c *Cursor) Peek() *Escalation {
	if c.pos+1 >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos+1]
}
