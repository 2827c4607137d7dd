package realtime

import (
	"encoding/json"
	"sync"
)

// Handler, bir event op'una abone olan callback.
// Dispatch sırası tek goroutine'dir (ReadPump) — handler'lar kendi
// state'lerini kendileri korur, bu paket ek senkronizasyon vaat etmez.
type Handler func(data json.RawMessage)

// Channel, reconciliation core'unun realtime taşıyıcıdan beklediği tek
// sözleşme: named event'lere abone ol / ayrıl, oda semantiği, emit.
//
// On bir disposer döner — scoped acquisition pattern'ı: session açılışta
// abone olur, Close'un HER çıkış yolunda disposer'ları çağırır.
type Channel interface {
	Join(room string) error
	Leave(room string) error
	Emit(op string, payload any) error
	On(op string, h Handler) (off func())
}

// dispatcher, op → handler kayıt defteri. Conn tarafından embed edilir;
// testlerde fake Channel'lar da aynı yapıyı kullanabilir.
type dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string]map[int]Handler)}
}

// on, handler'ı kaydeder ve kaldıran closure döner.
// Disposer idempotenttir — iki kez çağrılması zararsızdır.
func (d *dispatcher) on(op string, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handlers[op] == nil {
		d.handlers[op] = make(map[int]Handler)
	}
	id := d.nextID
	d.nextID++
	d.handlers[op][id] = h

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[op], id)
	}
}

// dispatch, event'i op'una abone tüm handler'lara sırayla iletir.
func (d *dispatcher) dispatch(ev Event) {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.handlers[ev.Op]))
	for _, h := range d.handlers[ev.Op] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(ev.Data)
	}
}
