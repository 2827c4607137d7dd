// Package reconcile, mesaj reconciliation çekirdeğidir: optimistic lokal
// yazmalar, REST history sayfaları ve sırası garanti edilmeyen realtime
// event'ler tek bir deduplike, kronolojik mesaj listesinde birleştirilir.
//
// Temel fikir çifte kimliktir: bir mesaj ya server'ın verdiği ID ile
// (ServerID) ya da client'ın gönderim anında ürettiği nonce ile tanınır.
// Aynı mesaj iki farklı yoldan gelebilir — optimistic kayıt nonce taşır,
// server onayı hem nonce hem ServerID taşır, başka bir cihazın mesajı
// sadece ServerID taşır. Merge bu yolların hepsini tek kayda indirger.
package reconcile

import "github.com/akinalp/ulak/models"

// CanonicalKey, mesajın dedup kimliğini döner.
//
// ServerID her zaman nonce'a tercih edilir: başka cihazlar/oturumlar aynı
// mesajı yalnızca server ID ile bilir, nonce sadece üreten cihazda anlamlıdır.
// İkisi de boşsa "" döner — mesaj kimliksizdir, merge bookkeeping'ine giremez.
func CanonicalKey(m models.Message) string {
	if m.ServerID != "" {
		return "s:" + m.ServerID
	}
	if m.Nonce != "" {
		return "c:" + m.Nonce
	}
	return ""
}
