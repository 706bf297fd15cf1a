package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/eventpass/cashless/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

const qrCodeTTL = 5 * time.Minute

// QRService issues short-lived, single-use pay codes that stand in for a
// wristband tap at terminals without an NFC reader.
type QRService struct {
	ledger *LedgerService
	redis  *redis.Client
	now    func() time.Time
	nonce  func() string
}

type qrPayload struct {
	AccountID string `json:"accountId"`
	OwnerID   string `json:"ownerId"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func NewQRService(ledger *LedgerService, redis *redis.Client) *QRService {
	return &QRService{
		ledger: ledger,
		redis:  redis,
		now:    time.Now,
		nonce:  generateNonce,
	}
}

// GenerateAccountQRCode returns the pay code and a base64 PNG rendering of it.
func (s *QRService) GenerateAccountQRCode(ctx context.Context, accountID, ownerID string) (string, string, error) {
	if s.redis == nil {
		return "", "", newError(ReasonTransient, "pay codes are unavailable")
	}

	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	if account.OwnerID != ownerID {
		return "", "", newError(ReasonPermissionDenied, "account %s does not belong to the caller", accountID)
	}
	if err := requireMutable(account); err != nil {
		return "", "", err
	}

	jsonData, err := json.Marshal(qrPayload{
		AccountID: account.ID,
		OwnerID:   account.OwnerID,
		Timestamp: s.now().Unix(),
		Nonce:     s.nonce(),
	})
	if err != nil {
		return "", "", err
	}

	qrCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qr:%s", qrCode)
	if err := s.redis.Set(ctx, key, jsonData, qrCodeTTL).Err(); err != nil {
		return "", "", newError(ReasonTransient, "storing pay code").wrap(err)
	}

	qr, err := qrcode.New(qrCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return qrCode, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolveQRCode consumes a pay code and returns the account it stands for.
func (s *QRService) ResolveQRCode(ctx context.Context, qrCode string) (*models.Account, error) {
	if s.redis == nil {
		return nil, newError(ReasonTransient, "pay codes are unavailable")
	}

	key := fmt.Sprintf("qr:%s", qrCode)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, newError(ReasonNotFound, "invalid or expired pay code")
	}
	if err != nil {
		return nil, newError(ReasonTransient, "reading pay code").wrap(err)
	}

	var payload qrPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return s.ledger.GetAccount(ctx, payload.AccountID)
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
