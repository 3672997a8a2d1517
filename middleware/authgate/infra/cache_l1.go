package infra

import (
	"container/list"
	"sync"
	"time"

	"keeper-gateway/middleware/authgate/domain"
)

// L1Cache é o cache de tokens do processo: tamanho máximo com descarte LRU e
// TTL por entrada, expiração preguiçosa (sem varredura de fundo).
//
// As chaves já chegam hasheadas pelo TieredCache; este cache nunca vê o token cru.
type L1Cache struct {
	mu    sync.Mutex
	max   int
	ll    *list.List
	items map[string]*list.Element

	now func() time.Time
}

type l1Entry struct {
	key       string
	res       *domain.IntrospectionResult
	expiresAt time.Time
}

type L1Option func(*L1Cache)

func WithL1Clock(now func() time.Time) L1Option {
	return func(c *L1Cache) { c.now = now }
}

func NewL1Cache(max int, opts ...L1Option) *L1Cache {
	if max <= 0 {
		max = 1000
	}
	c := &L1Cache{
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retorna a entrada fresca da chave; expirada conta como ausente.
func (c *L1Cache) Get(key string) (*domain.IntrospectionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*l1Entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	// marca como recém-usada para não ser descartada no limite de tamanho
	c.ll.MoveToFront(el)
	return ent.res, true
}

// Set grava a entrada com o TTL dado, descartando a mais antiga quando cheio.
func (c *L1Cache) Set(key string, res *domain.IntrospectionResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*l1Entry)
		ent.res = res
		ent.expiresAt = now.Add(ttl)
		c.ll.MoveToFront(el)
		return
	}

	for c.ll.Len() >= c.max {
		c.removeLocked(c.ll.Back())
	}

	el := c.ll.PushFront(&l1Entry{key: key, res: res, expiresAt: now.Add(ttl)})
	c.items[key] = el
}

func (c *L1Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *L1Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	ent := el.Value.(*l1Entry)
	delete(c.items, ent.key)
	c.ll.Remove(el)
}
