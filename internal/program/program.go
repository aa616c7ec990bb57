// Package program builds instructions for the Bloodchain on-chain program.
package program

import (
	"crypto/sha256"

	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"github.com/example/bloodchain/internal/donation"
)

// Kind identifies a Bloodchain instruction.
type Kind string

const (
	KindInitialize  Kind = "initialize"
	KindAddDonation Kind = "add_donation"
	KindRetrieve    Kind = "retrieve_donation_history"
)

const (
	tagAddDonation byte = 0
	tagRetrieve    byte = 1
)

// InitialSpace is the size of a freshly initialized account: one zeroed
// record slot, allocated by the program itself.
const InitialSpace = donation.RecordSize

var (
	ErrEmptyInstruction   = errors.New("instruction data is empty")
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// DefaultProgramID is the Bloodchain program address.
var DefaultProgramID = sol.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

// Discriminator returns the Anchor method discriminator for name.
func Discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var initializeDiscriminator = Discriminator(string(KindInitialize))

// Initialize creates the donation account. Both account and payer sign; the
// payer funds the account's rent.
func Initialize(programID, account, payer sol.PublicKey) sol.Instruction {
	return sol.NewInstruction(
		programID,
		sol.AccountMetaSlice{
			sol.NewAccountMeta(account, true, true),
			sol.NewAccountMeta(payer, true, true),
			sol.NewAccountMeta(sol.SystemProgramID, false, false),
		},
		initializeDiscriminator[:],
	)
}

// AddDonation appends d to the history stored in account.
func AddDonation(programID, account sol.PublicKey, d donation.Donation) (sol.Instruction, error) {
	rec, err := donation.Pack(d)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, 1+len(rec))
	data = append(data, tagAddDonation)
	data = append(data, rec...)
	return sol.NewInstruction(
		programID,
		sol.AccountMetaSlice{sol.NewAccountMeta(account, true, false)},
		data,
	), nil
}

// RetrieveDonationHistory makes the program print the history of account to
// the transaction log.
func RetrieveDonationHistory(programID, account sol.PublicKey) sol.Instruction {
	return sol.NewInstruction(
		programID,
		sol.AccountMetaSlice{sol.NewAccountMeta(account, false, false)},
		[]byte{tagRetrieve},
	)
}

// Decode classifies raw instruction data and returns its payload.
func Decode(data []byte) (Kind, []byte, error) {
	if len(data) == 0 {
		return "", nil, ErrEmptyInstruction
	}
	if len(data) >= len(initializeDiscriminator) && [8]byte(data[:8]) == initializeDiscriminator {
		return KindInitialize, data[8:], nil
	}
	switch data[0] {
	case tagAddDonation:
		return KindAddDonation, data[1:], nil
	case tagRetrieve:
		return KindRetrieve, data[1:], nil
	}
	return "", nil, errors.Wrapf(ErrUnknownInstruction, "tag %d", data[0])
}

// DecodeDonation decodes the payload of an add_donation instruction.
func DecodeDonation(data []byte) (donation.Donation, error) {
	kind, payload, err := Decode(data)
	if err != nil {
		return donation.Donation{}, err
	}
	if kind != KindAddDonation {
		return donation.Donation{}, errors.Wrapf(ErrUnknownInstruction, "%s carries no donation", kind)
	}
	return donation.Unpack(payload)
}
