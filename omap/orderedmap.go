package omap

// Map is a map that remembers the order in which keys were first set.
type Map[K comparable, V any] struct {
	Index []V
	Keys  []K
	Map   map[K]int
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		Index: make([]V, 0),
		Keys:  make([]K, 0),
		Map:   make(map[K]int),
	}
}

func (m *Map[K, V]) Set(k K, v V) {
	if i, ok := m.Map[k]; ok {
		m.Index[i] = v
		return
	}
	m.Map[k] = len(m.Index)
	m.Index = append(m.Index, v)
	m.Keys = append(m.Keys, k)
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	i, ok := m.Map[k]
	if ok {
		return m.Index[i], true
	}
	var zero V
	return zero, false
}

func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.Map[k]
	return ok
}

func (m *Map[K, V]) Len() int {
	return len(m.Index)
}

func (m *Map[K, V]) Each(cb func(k K, v V)) {
	for i, v := range m.Index {
		cb(m.Keys[i], v)
	}
}
