// Package middleware содержит HTTP middleware сервиса платежей.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// SignatureHeader содержит подпись тела уведомления PG.
const SignatureHeader = "X-PG-Signature"

const maxWebhookBody = 1 << 20

// SignatureMiddleware проверяет HMAC-SHA256 подпись тела запроса.
type SignatureMiddleware struct {
	secretKey []byte
}

// NewSignatureMiddleware создаёт проверку подписи. С пустым секретом запросы пропускаются без проверки.
func NewSignatureMiddleware(secret string) *SignatureMiddleware {
	return &SignatureMiddleware{
		secretKey: []byte(secret),
	}
}

// Middleware отклоняет запросы без корректной подписи и возвращает тело следующему обработчику.
func (s *SignatureMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secretKey) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		r.Body.Close()

		signature, err := hex.DecodeString(r.Header.Get(SignatureHeader))
		if err != nil || !hmac.Equal(signature, s.sign(body)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// Sign возвращает подпись тела в виде hex-строки.
func (s *SignatureMiddleware) Sign(body []byte) string {
	return hex.EncodeToString(s.sign(body))
}

func (s *SignatureMiddleware) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(body)
	return mac.Sum(nil)
}
