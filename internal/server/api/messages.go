package api

import "time"

// Wire types shared by the gRPC (JSON codec) and HTTP transports.

type Empty struct{}

type RegisterRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type RegisterResponse struct {
	UserID string `json:"user_id"`
}

type GetSaltRequest struct {
	Username string `json:"username"`
}

type GetSaltResponse struct {
	Salt []byte `json:"salt"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type LoginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

type Account struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Protected     bool      `json:"protected"`
	ProxyConfigID *string   `json:"proxy_config_id,omitempty"`
	Namespace     string    `json:"namespace"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateAccountRequest struct {
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	ProxyConfigID *string `json:"proxy_config_id,omitempty"`
}

type AccountFilter struct {
	Query     string `json:"query,omitempty"`
	Protected *bool  `json:"protected,omitempty"`
}

type ListAccountsRequest struct {
	SortBy string         `json:"sort_by,omitempty"`
	Order  string         `json:"order,omitempty"`
	Filter *AccountFilter `json:"filter,omitempty"`
}

type ListAccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type AccountRequest struct {
	AccountID string `json:"account_id"`
}

type UpdateAccountRequest struct {
	AccountID     string  `json:"account_id"`
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	Protected     *bool   `json:"protected,omitempty"`
	ProxyConfigID *string `json:"proxy_config_id,omitempty"`
	ClearProxy    bool    `json:"clear_proxy,omitempty"`
}

type UnlockAccountRequest struct {
	AccountID string `json:"account_id"`
	Verifier  []byte `json:"verifier"`
}

type UnlockAccountResponse struct {
	VerificationToken string `json:"verification_token"`
}

type SwitchAccountRequest struct {
	AccountID         string `json:"account_id"`
	VerificationToken string `json:"verification_token,omitempty"`
}

type SwitchAccountResponse struct {
	Success       bool    `json:"success"`
	AccountID     string  `json:"account_id"`
	SessionID     string  `json:"session_id"`
	Namespace     string  `json:"namespace"`
	ProxyConfigID *string `json:"proxy_config_id,omitempty"`
}

type DeleteAccountRequest struct {
	AccountID string `json:"account_id"`
	Confirm   bool   `json:"confirm"`
}

type AssignProxyRequest struct {
	AccountID     string  `json:"account_id"`
	ProxyConfigID *string `json:"proxy_config_id"`
}

type Proxy struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateProxyRequest struct {
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

type ListProxiesResponse struct {
	Proxies []Proxy `json:"proxies"`
}

type Tab struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type OpenTabRequest struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
}

type ListTabsResponse struct {
	Tabs []Tab `json:"tabs"`
}

type CloseTabRequest struct {
	AccountID string `json:"account_id"`
	TabID     string `json:"tab_id"`
}

type StorageEntry struct {
	Key           string     `json:"key"`
	Value         []byte     `json:"value"`
	SessionScoped bool       `json:"session_scoped,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type StoragePutRequest struct {
	Namespace     string     `json:"namespace"`
	Kind          string     `json:"kind"`
	Key           string     `json:"key"`
	Value         []byte     `json:"value"`
	SessionScoped bool       `json:"session_scoped,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type StorageGetAllRequest struct {
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
}

type StorageGetAllResponse struct {
	Entries []StorageEntry `json:"entries"`
}

type StorageClearRequest struct {
	Namespace string   `json:"namespace"`
	Kinds     []string `json:"kinds,omitempty"`
}

type SessionResponse struct {
	SessionID      string    `json:"session_id"`
	AccountID      string    `json:"account_id"`
	Namespace      string    `json:"namespace"`
	ProxyConfigID  *string   `json:"proxy_config_id,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type PurgeSessionsResponse struct {
	Purged int `json:"purged"`
}

// ErrorResponse is the body of every failed call: a stable code and a
// caller-safe message.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
