// Package session 管理测试客户端的本地身份：一个持久化的 secp256k1 私钥及其派生账户。
package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ponte-cripto/notus-relay/internal/infra/keystore"
)

// IdentitySlot 是私钥在存储中的 slot 名。
const IdentitySlot = "ponteCriptoTesterPrivateKey"

// SmartWallet 是 provider 返回的智能钱包引用，只保存在内存中。
type SmartWallet struct {
	ID                     string `json:"id"`
	AccountAbstraction     string `json:"accountAbstraction"`
	ExternallyOwnedAccount string `json:"externallyOwnedAccount"`
	Factory                string `json:"factory"`
	Salt                   string `json:"salt"`
	RegisteredAt           string `json:"registeredAt"`
}

// Session 串行化 bootstrap/reset，私钥不会离开 Session。
type Session struct {
	store  keystore.Store
	logger *slog.Logger

	mu         sync.Mutex
	key        *ecdsa.PrivateKey
	account    common.Address
	wallet     *SmartWallet
	kycSession string
}

// Option 定义可选参数。
type Option func(*Session)

// WithLogger 注入 slog Logger。
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 基于注入的 store 构造 Session。
func New(store keystore.Store, opts ...Option) (*Session, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	s := &Session{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bootstrap 读取 slot 中的私钥，不存在时生成并写入，返回派生的 EIP-55 账户。
func (s *Session) Bootstrap(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.Get(ctx, IdentitySlot)
	switch {
	case errors.Is(err, keystore.ErrNotFound):
		return s.generateLocked(ctx)
	case err != nil:
		return common.Address{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	key, err := decodeKey(stored)
	if err != nil {
		return common.Address{}, err
	}
	s.key = key
	s.account = crypto.PubkeyToAddress(key.PublicKey)
	return s.account, nil
}

func (s *Session) generateLocked(ctx context.Context) (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("session: generate key: %w", err)
	}
	if err := s.store.Set(ctx, IdentitySlot, hexutil.Encode(crypto.FromECDSA(key))); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.key = key
	s.account = crypto.PubkeyToAddress(key.PublicKey)
	s.logger.Info("generated local identity", slog.String("account", s.account.Hex()))
	return s.account, nil
}

func decodeKey(stored string) (*ecdsa.PrivateKey, error) {
	stored = strings.TrimSpace(stored)
	raw, err := hexutil.Decode(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	return key, nil
}

// Account 返回已派生的账户。
func (s *Session) Account() (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return common.Address{}, ErrNotBootstrapped
	}
	return s.account, nil
}

// SignMessage 对消息做 EIP-191 personal_sign，返回 65 字节签名（v 为 27/28）。
func (s *Session) SignMessage(msg []byte) ([]byte, error) {
	s.mu.Lock()
	key := s.key
	s.mu.Unlock()
	if key == nil {
		return nil, ErrNotBootstrapped
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return nil, fmt.Errorf("session: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Reset 删除持久化私钥并清空内存中的全部引用。
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, IdentitySlot); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.key = nil
	s.account = common.Address{}
	s.wallet = nil
	s.kycSession = ""
	return nil
}

// SetWallet 记录当前智能钱包。
func (s *Session) SetWallet(w *SmartWallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w == nil {
		s.wallet = nil
		return
	}
	cp := *w
	s.wallet = &cp
}

// Wallet 返回当前智能钱包的副本，没有时返回 nil。
func (s *Session) Wallet() *SmartWallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil {
		return nil
	}
	cp := *s.wallet
	return &cp
}

func (s *Session) SetKYCSession(id string) {
	s.mu.Lock()
	s.kycSession = strings.TrimSpace(id)
	s.mu.Unlock()
}

func (s *Session) KYCSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kycSession
}

// RequireWallet 是客户端侧的流程守卫，relay 不强制顺序。
func (s *Session) RequireWallet() (*SmartWallet, error) {
	w := s.Wallet()
	if w == nil || w.AccountAbstraction == "" {
		return nil, ErrNoWallet
	}
	return w, nil
}

// RequireKYCSession 返回当前 KYC 会话 id。
func (s *Session) RequireKYCSession() (string, error) {
	id := s.KYCSession()
	if id == "" {
		return "", ErrNoKYCSession
	}
	return id, nil
}
