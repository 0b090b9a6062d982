package escalation

import "sort"

// Field is a set of escalation columns changed during processing.
type Field uint8

const (
	FieldNextCheck Field = 1 << iota
	FieldEscStep
	FieldStatus
)

// Has reports whether f includes all of other.
func (f Field) Has(other Field) bool {
	return f&other == other
}

// Update is the persisted outcome of processing one escalation.
type Update struct {
	ID        uint64
	Changed   Field
	NextCheck int64
	EscStep   int
	Status    Status
}

// snapshot captures the persisted columns of an escalation before processing.
func snapshot(e *Escalation) Update {
	return Update{
		ID:        e.ID,
		NextCheck: e.NextCheck,
		EscStep:   e.EscStep,
		Status:    e.Status,
	}
}

// track records which columns of e differ from the snapshot.
func (u *Update) track(e *Escalation) {
	if e.NextCheck != u.NextCheck {
		u.NextCheck = e.NextCheck
		u.Changed |= FieldNextCheck
	}
	if e.EscStep != u.EscStep {
		u.EscStep = e.EscStep
		u.Changed |= FieldEscStep
	}
	if e.Status != u.Status {
		u.Status = e.Status
		u.Changed |= FieldStatus
	}
}

// DiffSet accumulates the updates and deletions of one processing pass.
type DiffSet struct {
	updates []Update
	deletes []uint64
	deleted map[uint64]bool
}

// NewDiffSet creates an empty DiffSet.
func NewDiffSet() *DiffSet {
	return &DiffSet{deleted: make(map[uint64]bool)}
}

// Record adds the outcome of processing one escalation. Completed escalations are deleted
// and unchanged ones are dropped.
func (d *DiffSet) Record(u Update) {
	if u.Status == StatusCompleted {
		d.Delete(u.ID)
		return
	}
	if u.Changed == 0 {
		return
	}
	d.updates = append(d.updates, u)
}

// Delete schedules an escalation for deletion.
func (d *DiffSet) Delete(id uint64) {
	if d.deleted[id] {
		return
	}
	d.deleted[id] = true
	d.deletes = append(d.deletes, id)
}

// Empty reports whether there is nothing to persist.
func (d *DiffSet) Empty() bool {
	return len(d.updates) == 0 && len(d.deletes) == 0
}

// Updates returns the changed escalations ordered by id.
func (d *DiffSet) Updates() []Update {
	result := append([]Update(nil), d.updates...)
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Deletes returns the escalation ids to delete in ascending order.
func (d *DiffSet) Deletes() []uint64 {
	result := append([]uint64(nil), d.deletes...)
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
