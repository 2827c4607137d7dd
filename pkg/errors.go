// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Sentinel error pattern'ı: errors.New() ile sabit error değişkenleri
// tanımlanır, çağıran taraf errors.Is ile karşılaştırır:
//
//	if errors.Is(err, pkg.ErrNotFound) { ... }
//
// api katmanı HTTP status code'larını bu error'lara map'ler;
// service katmanı error türüne göre davranış seçer (ör. 404 → metadata
// fallback zincirinde sıradaki endpoint'i dene).
package pkg

import "errors"

// Domain-level error'lar.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")

	// ErrUnavailable, ağ seviyesinde ulaşılamayan backend'i temsil eder —
	// HTTP response bile alınamadı (DNS, connection refused, timeout).
	ErrUnavailable = errors.New("service unavailable")
)
