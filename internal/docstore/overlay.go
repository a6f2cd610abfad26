package docstore

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

// Loader fetches the committed state of a document for the current attempt.
// Backends use it to register the document for conflict detection.
type Loader func(key Key) (data map[string]any, exists bool, err error)

// Change is the net effect of one attempt on one document.
type Change struct {
	Key    Key
	Before map[string]any // nil when the document did not exist
	After  map[string]any // nil when the document is deleted
}

type slot struct {
	data   map[string]any
	exists bool
}

// Overlay buffers the writes of one transaction attempt on top of the
// committed state returned by its Loader.
type Overlay struct {
	load  Loader
	base  map[Key]slot
	cur   map[Key]slot
	order []Key
	wrote bool
}

// NewOverlay returns an empty overlay reading through load.
func NewOverlay(load Loader) *Overlay {
	return &Overlay{
		load: load,
		base: map[Key]slot{},
		cur:  map[Key]slot{},
	}
}

// CheckRead fails once the attempt has buffered a write.
func (o *Overlay) CheckRead() error {
	if o.wrote {
		return ErrReadAfterWrite
	}
	return nil
}

// Read returns the committed document for a caller-visible read.
func (o *Overlay) Read(key Key) (map[string]any, bool, error) {
	if err := o.CheckRead(); err != nil {
		return nil, false, err
	}
	s, err := o.committed(key)
	if err != nil {
		return nil, false, err
	}
	return Clone(s.data), s.exists, nil
}

func (o *Overlay) committed(key Key) (slot, error) {
	if s, ok := o.base[key]; ok {
		return s, nil
	}
	data, exists, err := o.load(key)
	if err != nil {
		return slot{}, err
	}
	s := slot{data: data, exists: exists}
	o.base[key] = s
	return s, nil
}

func (o *Overlay) current(key Key) (slot, error) {
	if s, ok := o.cur[key]; ok {
		return s, nil
	}
	return o.committed(key)
}

func (o *Overlay) put(key Key, s slot) {
	if _, ok := o.cur[key]; !ok {
		o.order = append(o.order, key)
	}
	o.cur[key] = s
	o.wrote = true
}

// Create buffers a write that fails with ErrAlreadyExists if the document exists.
func (o *Overlay) Create(key Key, data map[string]any) error {
	s, err := o.current(key)
	if err != nil {
		return err
	}
	if s.exists {
		return ErrAlreadyExists
	}
	o.put(key, slot{data: Clone(data), exists: true})
	return nil
}

// Set buffers a full overwrite.
func (o *Overlay) Set(key Key, data map[string]any) error {
	if _, err := o.current(key); err != nil {
		return err
	}
	o.put(key, slot{data: Clone(data), exists: true})
	return nil
}

// Update buffers field mutations of an existing document.
func (o *Overlay) Update(key Key, updates []Update) error {
	s, err := o.current(key)
	if err != nil {
		return err
	}
	if !s.exists {
		return ErrNotFound
	}
	next, err := ApplyUpdates(s.data, updates)
	if err != nil {
		return err
	}
	o.put(key, slot{data: next, exists: true})
	return nil
}

// Delete buffers removal; deleting a missing document is a no-op.
func (o *Overlay) Delete(key Key) error {
	if _, err := o.current(key); err != nil {
		return err
	}
	o.put(key, slot{})
	return nil
}

// Changes lists the net effect per written document in first-write order.
func (o *Overlay) Changes() []Change {
	out := make([]Change, 0, len(o.order))
	for _, key := range o.order {
		before := o.base[key]
		after := o.cur[key]
		if !before.exists && !after.exists {
			continue
		}
		c := Change{Key: key}
		if before.exists {
			c.Before = before.data
		}
		if after.exists {
			c.After = after.data
		}
		out = append(out, c)
	}
	return out
}
