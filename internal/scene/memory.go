package scene

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"sync"
	"time"
)

// ErrBlockNotFound is returned for handles the engine does not know.
var ErrBlockNotFound = errors.New("block not found")

// ErrInvalidHierarchy is returned for parent/child operations that would
// break the tree.
var ErrInvalidHierarchy = errors.New("invalid hierarchy")

type block struct {
	typ      BlockType
	kind     string
	name     string
	fillType FillType
	parent   BlockID
	children []BlockID
	subs     SubResources
	floats   map[Property]float64
	bools    map[Property]bool
	loaded   bool
	refs     int // number of blocks using this block as their fill
}

type readFault struct {
	id   BlockID
	prop Property
}

// Memory is an in-memory Engine used by the CLI, the scenario harness and
// tests. It is safe for concurrent use; events are queued by mutations and
// delivered by Flush.
type Memory struct {
	mu          sync.Mutex
	blocks      map[BlockID]*block
	next        BlockID
	scene       BlockID
	page        BlockID
	pending     []Event
	subscribers map[int]func([]Event)
	nextSub     int
	commits     []string

	// LoadDelay is how long ForceLoadResource takes.
	LoadDelay time.Duration

	readFaults  map[readFault]error
	typeFaults  map[BlockID]error
	loadFaults  map[BlockID]error
	writeFaults map[readFault]error
	frameFaults map[BlockID]error
}

var (
	_ Engine      = (*Memory)(nil)
	_ Thumbnailer = (*Memory)(nil)
)

// NewMemory creates an engine holding a scene with one empty page.
func NewMemory() *Memory {
	m := &Memory{
		blocks:      make(map[BlockID]*block),
		subscribers: make(map[int]func([]Event)),
		readFaults:  make(map[readFault]error),
		typeFaults:  make(map[BlockID]error),
		loadFaults:  make(map[BlockID]error),
		writeFaults: make(map[readFault]error),
		frameFaults: make(map[BlockID]error),
	}
	m.scene = m.newBlock(TypeScene)
	m.page = m.newBlock(TypePage)
	m.blocks[m.page].parent = m.scene
	m.blocks[m.scene].children = []BlockID{m.page}
	m.blocks[m.page].floats[PropWidth] = 1080
	m.blocks[m.page].floats[PropHeight] = 1920
	return m
}

func (m *Memory) newBlock(t BlockType) BlockID {
	m.next++
	m.blocks[m.next] = &block{
		typ:    t,
		floats: make(map[Property]float64),
		bools:  make(map[Property]bool),
		loaded: true,
	}
	return m.next
}

func (m *Memory) get(id BlockID) (*block, error) {
	b, ok := m.blocks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	return b, nil
}

func (m *Memory) emit(id BlockID, t EventType) {
	m.pending = append(m.pending, Event{Block: id, Type: t})
}

// Page returns the page created by NewMemory.
func (m *Memory) Page() BlockID {
	return m.page
}

// CurrentPage implements Reader.
func (m *Memory) CurrentPage() (BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[m.page]; !ok {
		return NoBlock, fmt.Errorf("current page: %w", ErrBlockNotFound)
	}
	return m.page, nil
}

// Children implements Reader.
func (m *Memory) Children(id BlockID) ([]BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(b.children), nil
}

// Parent implements Reader.
func (m *Memory) Parent(id BlockID) (BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return NoBlock, err
	}
	return b.parent, nil
}

// Type implements Reader.
func (m *Memory) Type(id BlockID) (BlockType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.typeFaults[id]; err != nil {
		return "", err
	}
	b, err := m.get(id)
	if err != nil {
		return "", err
	}
	return b.typ, nil
}

// Kind implements Reader.
func (m *Memory) Kind(id BlockID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return "", err
	}
	return b.kind, nil
}

// FillType implements Reader.
func (m *Memory) FillType(id BlockID) (FillType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return FillNone, err
	}
	if !b.subs.Fill.Valid() {
		return FillNone, nil
	}
	fill, err := m.get(b.subs.Fill)
	if err != nil {
		return FillNone, err
	}
	return fill.fillType, nil
}

// SubResources implements Reader.
func (m *Memory) SubResources(id BlockID) (SubResources, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return SubResources{}, err
	}
	subs := b.subs
	subs.Effects = slices.Clone(b.subs.Effects)
	return subs, nil
}

// Name implements Reader.
func (m *Memory) Name(id BlockID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return "", err
	}
	return b.name, nil
}

// Float implements Reader. Unset properties read as 0.
func (m *Memory) Float(id BlockID, p Property) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFaults[readFault{id, p}]; err != nil {
		return 0, err
	}
	b, err := m.get(id)
	if err != nil {
		return 0, err
	}
	return b.floats[p], nil
}

// Bool implements Reader. Unset properties read as false.
func (m *Memory) Bool(id BlockID, p Property) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFaults[readFault{id, p}]; err != nil {
		return false, err
	}
	b, err := m.get(id)
	if err != nil {
		return false, err
	}
	return b.bools[p], nil
}

// Exists implements Reader.
func (m *Memory) Exists(id BlockID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocks[id]
	return ok
}

// ResourceLoaded implements Reader.
func (m *Memory) ResourceLoaded(id BlockID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return false, err
	}
	return b.loaded, nil
}

// SetFloat implements Writer.
func (m *Memory) SetFloat(id BlockID, p Property, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFaults[readFault{id, p}]; err != nil {
		return err
	}
	b, err := m.get(id)
	if err != nil {
		return err
	}
	if math.IsNaN(v) {
		return fmt.Errorf("set %s on %s: value is NaN", p, id)
	}
	b.floats[p] = v
	m.emit(id, EventUpdated)
	return nil
}

// SetBool implements Writer.
func (m *Memory) SetBool(id BlockID, p Property, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeFaults[readFault{id, p}]; err != nil {
		return err
	}
	b, err := m.get(id)
	if err != nil {
		return err
	}
	b.bools[p] = v
	m.emit(id, EventUpdated)
	return nil
}

// SetFill implements Writer.
func (m *Memory) SetFill(id, fill BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return err
	}
	f, err := m.get(fill)
	if err != nil {
		return err
	}
	if f.typ != TypeFill {
		return fmt.Errorf("set fill of %s: %s is a %s", id, fill, f.typ)
	}
	if old, ok := m.blocks[b.subs.Fill]; ok && b.subs.Fill != fill {
		old.refs--
	}
	if b.subs.Fill != fill {
		f.refs++
	}
	b.subs.Fill = fill
	m.emit(id, EventUpdated)
	return nil
}

// Create implements Lifecycle. New blocks have no parent.
func (m *Memory) Create(t BlockType) (BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t == TypeScene {
		return NoBlock, fmt.Errorf("create: a second scene is not allowed")
	}
	id := m.newBlock(t)
	m.emit(id, EventCreated)
	return id, nil
}

// Duplicate implements Lifecycle.
func (m *Memory) Duplicate(id BlockID) (BlockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.get(id)
	if err != nil {
		return NoBlock, err
	}
	if src.typ == TypeScene || src.typ == TypePage {
		return NoBlock, fmt.Errorf("duplicate %s: cannot duplicate a %s", id, src.typ)
	}
	dup := m.copyBlock(id)
	if src.parent.Valid() {
		parent := m.blocks[src.parent]
		idx := slices.Index(parent.children, id)
		parent.children = slices.Insert(parent.children, idx+1, dup)
		m.blocks[dup].parent = src.parent
		m.emit(src.parent, EventUpdated)
	}
	return dup, nil
}

// copyBlock deep-copies id and its owned sub-blocks. Caller holds mu.
func (m *Memory) copyBlock(id BlockID) BlockID {
	src := m.blocks[id]
	dupID := m.newBlock(src.typ)
	dup := m.blocks[dupID]
	dup.kind = src.kind
	dup.name = src.name
	dup.fillType = src.fillType
	dup.loaded = src.loaded
	for k, v := range src.floats {
		dup.floats[k] = v
	}
	for k, v := range src.bools {
		dup.bools[k] = v
	}
	m.emit(dupID, EventCreated)
	if src.subs.Fill.Valid() {
		dup.subs.Fill = m.copyBlock(src.subs.Fill)
		m.blocks[dup.subs.Fill].refs = 1
	}
	if src.subs.Shape.Valid() {
		dup.subs.Shape = m.copyBlock(src.subs.Shape)
	}
	if src.subs.Blur.Valid() {
		dup.subs.Blur = m.copyBlock(src.subs.Blur)
	}
	for _, fx := range src.subs.Effects {
		dup.subs.Effects = append(dup.subs.Effects, m.copyBlock(fx))
	}
	for _, child := range src.children {
		c := m.copyBlock(child)
		m.blocks[c].parent = dupID
		dup.children = append(dup.children, c)
	}
	return dupID
}

// Destroy implements Lifecycle. Children are destroyed with their parent;
// a fill is destroyed only when no other block still uses it.
func (m *Memory) Destroy(id BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return err
	}
	if id == m.scene || id == m.page {
		return fmt.Errorf("destroy %s: %w", id, ErrInvalidHierarchy)
	}
	m.detach(id, b)
	m.destroy(id)
	return nil
}

func (m *Memory) destroy(id BlockID) {
	b, ok := m.blocks[id]
	if !ok {
		return
	}
	for _, child := range b.children {
		m.destroy(child)
	}
	if f, ok := m.blocks[b.subs.Fill]; ok {
		f.refs--
		if f.refs <= 0 {
			m.destroy(b.subs.Fill)
		}
	}
	if b.subs.Shape.Valid() {
		m.destroy(b.subs.Shape)
	}
	if b.subs.Blur.Valid() {
		m.destroy(b.subs.Blur)
	}
	for _, fx := range b.subs.Effects {
		m.destroy(fx)
	}
	delete(m.blocks, id)
	m.emit(id, EventDestroyed)
}

func (m *Memory) detach(id BlockID, b *block) {
	if !b.parent.Valid() {
		return
	}
	if parent, ok := m.blocks[b.parent]; ok {
		parent.children = slices.DeleteFunc(parent.children, func(c BlockID) bool { return c == id })
		m.emit(b.parent, EventUpdated)
	}
	b.parent = NoBlock
}

// AppendChild implements Lifecycle. A child that already has a parent is
// moved.
func (m *Memory) AppendChild(parent, child BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(parent)
	if err != nil {
		return err
	}
	return m.insert(parent, p, child, len(p.children))
}

// InsertChild implements Lifecycle. The index is clamped to the parent's
// child count after the child has been detached.
func (m *Memory) InsertChild(parent, child BlockID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.get(parent)
	if err != nil {
		return err
	}
	return m.insert(parent, p, child, index)
}

func (m *Memory) insert(parentID BlockID, p *block, childID BlockID, index int) error {
	c, err := m.get(childID)
	if err != nil {
		return err
	}
	if childID == parentID || m.isAncestor(childID, parentID) {
		return fmt.Errorf("insert %s into %s: %w", childID, parentID, ErrInvalidHierarchy)
	}
	m.detach(childID, c)
	index = max(0, min(index, len(p.children)))
	p.children = slices.Insert(p.children, index, childID)
	c.parent = parentID
	m.emit(parentID, EventUpdated)
	m.emit(childID, EventUpdated)
	return nil
}

func (m *Memory) isAncestor(ancestor, id BlockID) bool {
	for cur := m.blocks[id]; cur != nil && cur.parent.Valid(); cur = m.blocks[cur.parent] {
		if cur.parent == ancestor {
			return true
		}
	}
	return false
}

// Subscribe implements EventSource.
func (m *Memory) Subscribe(fn func([]Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.nextSub
	m.nextSub++
	m.subscribers[key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, key)
	}
}

// Flush implements EventSource.
func (m *Memory) Flush() {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return
	}
	batch := m.pending
	m.pending = nil
	keys := make([]int, 0, len(m.subscribers))
	for k := range m.subscribers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	subs := make([]func([]Event), 0, len(keys))
	for _, k := range keys {
		subs = append(subs, m.subscribers[k])
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(slices.Clone(batch))
	}
}

// PendingEvents returns the number of undelivered events.
func (m *Memory) PendingEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ForceLoadResource implements Loader.
func (m *Memory) ForceLoadResource(ctx context.Context, id BlockID) error {
	m.mu.Lock()
	delay := m.LoadDelay
	fault := m.loadFaults[id]
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	if fault != nil {
		return fault
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return err
	}
	b.loaded = true
	return nil
}

// Commit implements Committer.
func (m *Memory) Commit(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, label)
	return nil
}

// Commits returns the labels of all undo boundaries so far.
func (m *Memory) Commits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.commits)
}

// Frame implements Thumbnailer with a deterministic placeholder image.
func (m *Memory) Frame(ctx context.Context, id BlockID, size Size, seconds float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.frameFaults[id]; err != nil {
		return nil, err
	}
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("frame %d %dx%d @%.3f", uint32(id), size.Width, size.Height, seconds)), nil
}

// Samples implements Thumbnailer with a deterministic waveform.
func (m *Memory) Samples(ctx context.Context, id BlockID, from, to float64, count int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.frameFaults[id]; err != nil {
		return nil, err
	}
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%d", uint32(id))
	phase := float64(h.Sum32()%360) * math.Pi / 180
	out := make([]float32, count)
	step := (to - from) / float64(max(count, 1))
	for i := range out {
		t := from + step*float64(i)
		out[i] = float32(math.Abs(math.Sin(t*2*math.Pi + phase)))
	}
	return out, nil
}

// Advance moves the playhead of a playing page forward by d, stopping at the
// page duration. It emits an update for the page like a rendered frame does.
func (m *Memory) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := m.blocks[m.page]
	if !page.bools[PropPlaying] {
		return
	}
	t := page.floats[PropPlaybackTime] + d.Seconds()
	if end := page.floats[PropDuration]; t >= end {
		t = end
		page.bools[PropPlaying] = false
	}
	page.floats[PropPlaybackTime] = t
	m.emit(m.page, EventUpdated)
}

// SetKind sets the kind metadata of a block.
func (m *Memory) SetKind(id BlockID, kind string) error {
	return m.with(id, func(b *block) { b.kind = kind })
}

// SetName sets the display name of a block.
func (m *Memory) SetName(id BlockID, name string) error {
	return m.with(id, func(b *block) { b.name = name })
}

// SetFillType sets the type of a fill block.
func (m *Memory) SetFillType(id BlockID, t FillType) error {
	return m.with(id, func(b *block) { b.fillType = t })
}

// SetLoaded marks the resource behind id as loaded or not.
func (m *Memory) SetLoaded(id BlockID, loaded bool) error {
	return m.with(id, func(b *block) { b.loaded = loaded })
}

// SetShape attaches a shape block to id.
func (m *Memory) SetShape(id, shape BlockID) error {
	return m.with(id, func(b *block) { b.subs.Shape = shape })
}

// SetBlur attaches a blur block to id.
func (m *Memory) SetBlur(id, blur BlockID) error {
	return m.with(id, func(b *block) { b.subs.Blur = blur })
}

// AddEffect appends an effect block to id.
func (m *Memory) AddEffect(id, effect BlockID) error {
	return m.with(id, func(b *block) { b.subs.Effects = append(b.subs.Effects, effect) })
}

func (m *Memory) with(id BlockID, fn func(*block)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.get(id)
	if err != nil {
		return err
	}
	fn(b)
	m.emit(id, EventUpdated)
	return nil
}

// FailRead makes reads of p on id fail with err. A nil err clears the fault.
func (m *Memory) FailRead(id BlockID, p Property, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFault(m.readFaults, readFault{id, p}, err)
}

// FailWrite makes writes of p on id fail with err.
func (m *Memory) FailWrite(id BlockID, p Property, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFault(m.writeFaults, readFault{id, p}, err)
}

// FailType makes Type(id) fail with err.
func (m *Memory) FailType(id BlockID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFault(m.typeFaults, id, err)
}

// FailLoad makes ForceLoadResource(id) fail with err.
func (m *Memory) FailLoad(id BlockID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFault(m.loadFaults, id, err)
}

// FailFrames makes thumbnail rendering of id fail with err.
func (m *Memory) FailFrames(id BlockID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setFault(m.frameFaults, id, err)
}

func setFault[K comparable](faults map[K]error, key K, err error) {
	if err == nil {
		delete(faults, key)
		return
	}
	faults[key] = err
}
