package database

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/pohchain/foundation/blockchain/signature"
	"github.com/google/uuid"
)

// Set of limits applied to a transaction footprint.
const (
	MaxAccounts     = 64
	MaxInstructions = 32
	MaxDataSize     = 10 * 1024
)

// ErrInvalidTransaction is returned when a transaction is malformed.
var ErrInvalidTransaction = errors.New("invalid transaction")

// =============================================================================

// Op identifies the operation an instruction performs.
type Op uint8

// Set of supported instruction operations.
const (
	OpTransfer Op = iota + 1 // Move Amount from From to To.
	OpSetData                // Replace the data blob of From with Data.
	OpAssign                 // Change the owner of From to To.
)

var opNames = map[Op]string{
	OpTransfer: "transfer",
	OpSetData:  "set_data",
	OpAssign:   "assign",
}

// String implements the fmt.Stringer interface.
func (op Op) String() string {
	if name, exists := opNames[op]; exists {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// MarshalText implements the encoding.TextMarshaler interface.
func (op Op) MarshalText() ([]byte, error) {
	if _, exists := opNames[op]; !exists {
		return nil, fmt.Errorf("unknown op %d", op)
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (op *Op) UnmarshalText(text []byte) error {
	for k, name := range opNames {
		if name == string(text) {
			*op = k
			return nil
		}
	}
	return fmt.Errorf("unknown op %q", text)
}

// Instruction is one operation applied by a transaction. Instructions are
// opaque to the scheduler, only the declared footprint matters there.
type Instruction struct {
	Op     Op        `json:"op" validate:"required"`
	From   AccountID `json:"from" validate:"required"`
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount"`
	Data   []byte    `json:"data,omitempty"`
}

// Transfer constructs an instruction moving amount between two accounts.
func Transfer(from AccountID, to AccountID, amount uint64) Instruction {
	return Instruction{Op: OpTransfer, From: from, To: to, Amount: amount}
}

// SetData constructs an instruction replacing the data blob of an account.
func SetData(account AccountID, data []byte) Instruction {
	return Instruction{Op: OpSetData, From: account, Data: data}
}

// Assign constructs an instruction changing the owner of an account.
func Assign(account AccountID, owner AccountID) Instruction {
	return Instruction{Op: OpAssign, From: account, To: owner}
}

// =============================================================================

// Tx is the transactional information submitted by a wallet. The full set of
// accounts read and written is declared up front.
type Tx struct {
	ID           uuid.UUID     `json:"id" validate:"required"`
	RecentHash   Hash          `json:"recent_hash"`
	Reads        []AccountID   `json:"reads"`
	Writes       []AccountID   `json:"writes" validate:"required,min=1"`
	Instructions []Instruction `json:"instructions" validate:"required,min=1,dive"`
}

// NewTx constructs a new transaction with a fresh id.
func NewTx(recentHash Hash, reads []AccountID, writes []AccountID, instructions ...Instruction) (Tx, error) {
	tx := Tx{
		ID:           uuid.New(),
		RecentHash:   recentHash,
		Reads:        reads,
		Writes:       writes,
		Instructions: instructions,
	}

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}

	return tx.Normalize(), nil
}

// Validate checks the transaction is well formed.
func (tx Tx) Validate() error {
	if tx.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}

	if len(tx.Writes) == 0 {
		return fmt.Errorf("%w: no write accounts", ErrInvalidTransaction)
	}

	if len(tx.Reads)+len(tx.Writes) > MaxAccounts {
		return fmt.Errorf("%w: too many accounts, max %d", ErrInvalidTransaction, MaxAccounts)
	}

	if len(tx.Instructions) == 0 || len(tx.Instructions) > MaxInstructions {
		return fmt.Errorf("%w: instruction count %d, allowed 1-%d", ErrInvalidTransaction, len(tx.Instructions), MaxInstructions)
	}

	if err := checkAccounts("reads", tx.Reads); err != nil {
		return err
	}
	if err := checkAccounts("writes", tx.Writes); err != nil {
		return err
	}

	for i, ins := range tx.Instructions {
		if _, exists := opNames[ins.Op]; !exists {
			return fmt.Errorf("%w: instruction %d: unknown op %d", ErrInvalidTransaction, i, ins.Op)
		}
		if !ins.From.IsAccountID() {
			return fmt.Errorf("%w: instruction %d: invalid from account", ErrInvalidTransaction, i)
		}
		if ins.Op != OpSetData && !ins.To.IsAccountID() {
			return fmt.Errorf("%w: instruction %d: invalid to account", ErrInvalidTransaction, i)
		}
		if len(ins.Data) > MaxDataSize {
			return fmt.Errorf("%w: instruction %d: data too large", ErrInvalidTransaction, i)
		}
	}

	return nil
}

// Normalize returns a copy of the transaction with every account id in
// checksum format. The binary form, and therefore the signature, is unchanged.
func (tx Tx) Normalize() Tx {
	norm := func(ids []AccountID) []AccountID {
		out := make([]AccountID, len(ids))
		for i, id := range ids {
			out[i] = id.normalize()
		}
		return out
	}

	tx.Reads = norm(tx.Reads)
	tx.Writes = norm(tx.Writes)

	ins := make([]Instruction, len(tx.Instructions))
	for i, in := range tx.Instructions {
		in.From = in.From.normalize()
		if in.To != "" {
			in.To = in.To.normalize()
		}
		ins[i] = in
	}
	tx.Instructions = ins

	return tx
}

// SigningBytes returns the exact bytes covered by the signature.
func (tx Tx) SigningBytes() []byte {
	var e encoder
	e.tx(tx)
	return e.buf
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if err := tx.Validate(); err != nil {
		return SignedTx{}, err
	}

	v, r, s, err := signature.Sign(tx.SigningBytes(), privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx: tx.Normalize(),
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// checkAccounts validates a declared account set has no bad or repeated ids.
func checkAccounts(set string, ids []AccountID) error {
	seen := make(map[[addressLength]byte]struct{}, len(ids))
	for _, id := range ids {
		if !id.IsAccountID() {
			return fmt.Errorf("%w: %s: invalid account %q", ErrInvalidTransaction, set, id)
		}

		b := id.bytes()
		if _, exists := seen[b]; exists {
			return fmt.Errorf("%w: %s: duplicate account %s", ErrInvalidTransaction, set, id)
		}
		seen[b] = struct{}{}
	}

	return nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v" validate:"required"` // Recovery identifier, either 29 or 30 with pohID.
	R *big.Int `json:"r" validate:"required"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s" validate:"required"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction is well formed and has a proper
// signature that conforms to our standards.
func (tx SignedTx) Validate() error {
	if err := tx.Tx.Validate(); err != nil {
		return err
	}

	return signature.VerifySignature(tx.V, tx.R, tx.S)
}

// FromAccount extracts the account id that signed the transaction.
func (tx SignedTx) FromAccount() (AccountID, error) {
	address, err := signature.FromAddress(tx.SigningBytes(), tx.V, tx.R, tx.S)
	return AccountID(address), err
}

// Digest returns the sha256 hash of the encoded signed transaction.
func (tx SignedTx) Digest() Hash {
	var e encoder
	e.signedTx(tx)
	return HashData(e.buf)
}

// Hash implements the merkle Hashable interface.
func (tx SignedTx) Hash() ([]byte, error) {
	h := tx.Digest()
	return h[:], nil
}

// Equals implements the merkle Hashable interface. Two transactions are the
// same if their ids and signatures match.
func (tx SignedTx) Equals(otherTx SignedTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.ID == otherTx.ID && bytes.Equal(txSig, otherTxSig)
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return tx.ID.String()
}
