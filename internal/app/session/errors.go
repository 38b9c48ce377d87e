package session

import "errors"

var (
	// ErrStorageUnavailable 表示 slot 存储读写失败。
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrCorruptIdentity 表示 slot 中的值无法解析为私钥，不会被静默覆盖。
	ErrCorruptIdentity = errors.New("stored identity is corrupt")
	// ErrNotBootstrapped 表示尚未调用 Bootstrap。
	ErrNotBootstrapped = errors.New("session is not bootstrapped")
	// ErrNoWallet 表示尚未注册或查询到智能钱包。
	ErrNoWallet = errors.New("no smart wallet in session: register or look it up first")
	// ErrNoKYCSession 表示尚未创建 KYC 会话。
	ErrNoKYCSession = errors.New("no kyc session in session: start one first")
)
