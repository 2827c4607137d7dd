package reconcile

import (
	"sort"

	"github.com/akinalp/ulak/models"
)

// Finalize, render'a giden listeyi üretir: defensive dedup + kronolojik
// stable sort. Her mutation'dan sonra çağrılır ve idempotenttir —
// Finalize(Finalize(x)) == Finalize(x).
//
// Dedup ikinci bir savunma hattıdır: Merge çoğu çakışmayı kapatır ama
// caller Merge'den geçmeyen yollarla (cache seed, targeted patch) listeye
// kayıt eklemiş olabilir. Aynı mesaj hem ServerID'li hem de orphan
// nonce'lu iki satır olarak geldiyse ServerID'li hali kazanır; pozisyonu
// ilk görülen satır belirler (optimistic kayıt yerini korur).
//
// Sort stabilitesi önemlidir: aynı timestamp'e sahip mesajlar (art arda
// hızlı gönderimler) ekleme sıralarını korumalıdır.
func Finalize(msgs []models.Message) []models.Message {
	// Nonce → ServerID eşlemesi: server kimlikli kayıtlardan öğrenilir,
	// orphan nonce satırını aynı mesajın server satırına bağlamak için.
	nonceToServer := make(map[string]string)
	// Her canonical key için en dolu (server kimlikli) versiyon.
	best := make(map[string]models.Message)
	for _, m := range msgs {
		if m.ServerID == "" {
			continue
		}
		if m.Nonce != "" {
			nonceToServer[m.Nonce] = m.ServerID
		}
		best["s:"+m.ServerID] = m
	}

	seen := make(map[string]bool, len(msgs))
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		key := CanonicalKey(m)
		if m.ServerID == "" && m.Nonce != "" {
			// Orphan nonce satırı — aynı nonce bir server kaydında da
			// görünüyorsa ikisi aynı mesajdır.
			if sid, ok := nonceToServer[m.Nonce]; ok {
				key = "s:" + sid
			}
		}
		if key == "" {
			// Kimliksiz kayıt: RenderKey ile bir kez render edilir.
			key = m.RenderKey
		}
		if key != "" && seen[key] {
			continue
		}
		if key != "" {
			seen[key] = true
		}
		if v, ok := best[key]; ok {
			m = v
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
