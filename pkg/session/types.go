package session

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ClientContext is supplied by the SDK client; the paymaster address is used verbatim
type ClientContext struct {
	Environment      string `json:"environment,omitempty"`
	PaymasterAddress string `json:"paymasterAddress"`
}

// AuthData is opaque to the protocol and carried through unmodified
type AuthData struct {
	IdToken  string `json:"idToken"`
	Provider string `json:"provider"`
}

// SessionData is the canonical record submitted to the authorization service.
// A new one, with a new nonce, is built for every payload.
type SessionData struct {
	Nonce     string `json:"nonce"`
	ClientSWA string `json:"clientSWA"`
	SessionPk string `json:"sessionPk"`

	// Gas fee fields are optional until the authorization service confirms they are required
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`

	Paymaster     string `json:"paymaster"`
	PaymasterData string `json:"paymasterData"`
}

// AuthenticationPayload is returned to the caller and consumed once by the authorization service.
// Both signatures are over the same digest of the session address.
type AuthenticationPayload struct {
	AuthData                 AuthData    `json:"authData"`
	SessionData              SessionData `json:"sessionData"`
	SessionPkClientSignature string      `json:"sessionPkClientSignature"`
	SessionDataUserSignature string      `json:"sessionDataUserSignature"`
}

// GasFees are optional EIP-1559 fee caps attached to session data
type GasFees struct {
	MaxPriorityFeePerGas *hexutil.Big
	MaxFeePerGas         *hexutil.Big
}
