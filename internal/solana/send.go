package solana

import (
	"context"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var commitmentRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	got, ok := commitmentRank[status]
	if !ok {
		return false
	}
	return got >= commitmentRank[rpc.ConfirmationStatusType(want)]
}

// SendAndConfirm builds a transaction paid for by the wallet, signs it with
// the wallet and signers, submits it and blocks until it reaches the
// client's commitment. A failed send is returned as is; nothing is retried.
func (cl *Client) SendAndConfirm(ctx context.Context, instructions []sol.Instruction, signers ...sol.PrivateKey) (sol.Signature, error) {
	start := time.Now()
	bh, err := cl.c.GetLatestBlockhash(ctx, cl.commitment)
	cl.observe("getLatestBlockhash", start, err)
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "get latest blockhash")
	}
	if bh == nil || bh.Value == nil {
		return sol.Signature{}, errors.New("get latest blockhash: empty response")
	}

	tx, err := sol.NewTransaction(instructions, bh.Value.Blockhash, sol.TransactionPayer(cl.Payer()))
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "build transaction")
	}

	keys := make(map[sol.PublicKey]*sol.PrivateKey, len(signers)+1)
	for _, k := range append([]sol.PrivateKey{cl.wallet}, signers...) {
		k := k
		keys[k.PublicKey()] = &k
	}
	if _, err := tx.Sign(func(pub sol.PublicKey) *sol.PrivateKey { return keys[pub] }); err != nil {
		return sol.Signature{}, errors.Wrap(err, "sign transaction")
	}

	start = time.Now()
	sig, err := cl.c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: cl.commitment,
	})
	cl.observe("sendTransaction", start, err)
	if err != nil {
		return sol.Signature{}, errors.Wrap(err, "send transaction")
	}
	cl.log.WithField("signature", sig.String()).Debug("transaction sent")

	if err := cl.confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (cl *Client) confirm(parent context.Context, sig sol.Signature) error {
	ctx, cancel := context.WithTimeout(parent, cl.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(cl.pollInterval)
	defer ticker.Stop()

	log := cl.log.WithField("signature", sig.String())
	for {
		start := time.Now()
		res, err := cl.c.GetSignatureStatuses(ctx, false, sig)
		cl.observe("getSignatureStatuses", start, err)
		if err != nil && ctx.Err() == nil {
			return errors.Wrapf(err, "get status of %s", sig)
		}
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return errors.Wrapf(ErrTransactionFailed, "%s: %v", sig, st.Err)
			}
			if reached(st.ConfirmationStatus, cl.commitment) {
				log.WithFields(logrus.Fields{"slot": st.Slot, "status": st.ConfirmationStatus}).Debug("transaction confirmed")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if perr := parent.Err(); perr != nil {
				return errors.Wrapf(perr, "confirm %s", sig)
			}
			return errors.Wrapf(ErrConfirmTimeout, "%s after %s", sig, cl.confirmTimeout)
		case <-ticker.C:
		}
	}
}
