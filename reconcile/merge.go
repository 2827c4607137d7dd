package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/ulak/models"
)

// Policy, alan çakışmalarında hangi tarafın kazanacağını belirler.
//
// PreferServer: gelen (remote) alanlar mevcut alanların üzerine yazar,
// mevcut alanlar sadece boşlukları doldurur. REST response ve realtime
// event'ler için kullanılır — server truth'tur.
//
// PreferLocal: mevcut (lokal) alanlar kazanır, gelen sadece boşlukları
// doldurur. Optimistic insert için kullanılır — kullanıcının az önce
// yazdığı içerik, henüz gelmemiş bir echo tarafından ezilmemelidir.
type Policy int

const (
	PreferServer Policy = iota
	PreferLocal
)

// rec, merge sırasında tek bir mesajın güncel halini tutan hücre.
// İki index map'i de (byServer, byNonce) aynı rec'i işaret edebilir;
// merge bir rec'i güncellediğinde her iki yoldan yapılan lookup da
// güncel hali görür (union-find tarzı repointing).
type rec struct {
	msg models.Message
}

// Merge, mevcut sıralı koleksiyonla gelen batch'i policy altında birleştirir
// ve yeni bir koleksiyon döner. Girdiler değiştirilmez — caller state'ini
// dönen slice ile topluca değiştirir.
//
// Davranış garantileri:
//   - Aynı canonical kimliğe ulaşan iki kayıt asla iki satır üretmez.
//   - Nonce'u bilinen bir kayda ServerID taşıyan bir onay gelirse ServerID
//     kayda terfi eder ve kayıt artık her iki kimlikle de bulunur
//     ("server optimistic gönderimi onayladı" yolu).
//   - Kimliksiz (ServerID'siz + Nonce'suz) gelen kayıt, tek seferlik bir
//     RenderKey ile eklenir: bir kez render edilir, bir daha eşleşmez.
//   - Aynı batch içinde aynı kimliğe çarpan iki kayıttan sonraki kazanır
//     (hızlı edit + onay patlaması için last-write-wins).
//   - Set üyeliği varış sırasından bağımsızdır; görüntü sırası Finalize'ın
//     işidir.
func Merge(existing []models.Message, incoming []models.Message, policy Policy) []models.Message {
	byServer := make(map[string]*rec, len(existing))
	byNonce := make(map[string]*rec, len(existing))

	order := make([]*rec, 0, len(existing))
	for _, m := range existing {
		r := &rec{msg: m}
		order = append(order, r)
		if m.ServerID != "" {
			byServer[m.ServerID] = r
		}
		if m.Nonce != "" {
			byNonce[m.Nonce] = r
		}
	}

	var inserted []*rec
	for _, inc := range incoming {
		// Timestamp normalizasyonu — wire'dan timestamp gelmediyse
		// gönderim anı kullanılır. Sıfır zamanlı mesaj sort'u bozar.
		if inc.Timestamp.IsZero() {
			inc.Timestamp = time.Now()
		}

		var target *rec
		if inc.ServerID != "" {
			target = byServer[inc.ServerID]
		}
		if target == nil && inc.Nonce != "" {
			target = byNonce[inc.Nonce]
		}

		if target != nil {
			target.msg = mergeFields(target.msg, inc, policy)
			// Repointing: merged kayıt artık hangi kimlikleri taşıyorsa
			// her ikisinin map girişi de bu rec'i göstermeli. Aksi halde
			// daha sonra sadece nonce ile yapılan bir lookup eski
			// (orphan) kayda düşer.
			if target.msg.ServerID != "" {
				byServer[target.msg.ServerID] = target
			}
			if target.msg.Nonce != "" {
				byNonce[target.msg.Nonce] = target
			}
			continue
		}

		if !inc.Identified() && inc.RenderKey == "" {
			inc.RenderKey = "x:" + uuid.NewString()
		}
		r := &rec{msg: inc}
		if inc.ServerID != "" {
			byServer[inc.ServerID] = r
		}
		if inc.Nonce != "" {
			byNonce[inc.Nonce] = r
		}
		inserted = append(inserted, r)
	}

	// Çıktıyı yeniden kur: önce mevcut sıra, sonra yeni eklenenler.
	// resolve() her kaydı map'lerin güncel gösterdiği rec'e çözer —
	// orphan nonce kaydı, server onayıyla birleşen rec'e katlanır ve
	// ilk görüldüğü pozisyonda en güncel haliyle emit edilir.
	emitted := make(map[*rec]bool, len(order)+len(inserted))
	out := make([]models.Message, 0, len(order)+len(inserted))

	emit := func(r *rec) {
		t := resolve(r, byServer, byNonce)
		if emitted[t] {
			return
		}
		emitted[t] = true
		out = append(out, t.msg)
	}

	for _, r := range order {
		emit(r)
	}
	for _, r := range inserted {
		emit(r)
	}

	// Son bir canonical-key dedup — bir kayıt iki yoldan da ulaşılabilir
	// olmuş olabilir. İlk görülen pozisyon kazanır.
	return dedupByKey(out)
}

// MergeOne, tek mesajlık batch için kısayol.
func MergeOne(existing []models.Message, inc models.Message, policy Policy) []models.Message {
	return Merge(existing, []models.Message{inc}, policy)
}

// resolve, kaydın kimliklerinin güncel işaret ettiği rec'i döner.
func resolve(r *rec, byServer, byNonce map[string]*rec) *rec {
	if r.msg.ServerID != "" {
		if t := byServer[r.msg.ServerID]; t != nil {
			return t
		}
	}
	if r.msg.Nonce != "" {
		if t := byNonce[r.msg.Nonce]; t != nil {
			return t
		}
	}
	return r
}

// mergeFields, iki kaydı alan alan birleştirir.
// Kimlik alanları (ServerID, Nonce) policy'den bağımsız union'dır — bir
// kimlik asla kaybolmaz, sadece kazanılır.
func mergeFields(base, inc models.Message, policy Policy) models.Message {
	out := base
	if out.ServerID == "" {
		out.ServerID = inc.ServerID
	}
	if out.Nonce == "" {
		out.Nonce = inc.Nonce
	}

	if policy == PreferServer {
		if inc.ChannelID != "" {
			out.ChannelID = inc.ChannelID
		}
		if inc.From != "" {
			out.From = inc.From
		}
		if inc.To != "" {
			out.To = inc.To
		}
		if inc.Kind != "" {
			out.Kind = inc.Kind
		}
		if inc.Body != "" {
			out.Body = inc.Body
		}
		if !inc.Timestamp.IsZero() {
			out.Timestamp = inc.Timestamp
		}
		if inc.State != "" {
			out.State = inc.State
		}
		return out
	}

	// PreferLocal — mevcut alanlar kazanır, gelen boşlukları doldurur.
	if out.ChannelID == "" {
		out.ChannelID = inc.ChannelID
	}
	if out.From == "" {
		out.From = inc.From
	}
	if out.To == "" {
		out.To = inc.To
	}
	if out.Kind == "" {
		out.Kind = inc.Kind
	}
	if out.Body == "" {
		out.Body = inc.Body
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = inc.Timestamp
	}
	if out.State == "" {
		out.State = inc.State
	}
	return out
}

// dedupByKey, listeyi canonical key'e göre deduplike eder.
// Kimliksiz kayıtlar RenderKey'leriyle ayırt edilir.
func dedupByKey(msgs []models.Message) []models.Message {
	seen := make(map[string]bool, len(msgs))
	out := msgs[:0:0]
	for _, m := range msgs {
		key := CanonicalKey(m)
		if key == "" {
			key = m.RenderKey
		}
		if key != "" && seen[key] {
			continue
		}
		if key != "" {
			seen[key] = true
		}
		out = append(out, m)
	}
	return out
}
