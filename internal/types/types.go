package types

import (
	"time"

	"github.com/example/bloodchain/internal/donation"
)

// TransactionResponse is returned for every submitted program transaction.
type TransactionResponse struct {
	Signature   string `json:"signature"`
	Account     string `json:"account"`
	Instruction string `json:"instruction"`
	ConfirmedAt string `json:"confirmed_at"` // RFC3339
}

// AddDonationRequest is the payload for appending a donation.
// Date is RFC3339 or YYYY-MM-DD; empty means now.
type AddDonationRequest struct {
	DonorName string `json:"donor_name"`
	BloodType string `json:"blood_type"`
	Date      string `json:"date"`
}

// DonationEntry is a donation as rendered in JSON.
type DonationEntry struct {
	DonorName string `json:"donor_name"`
	BloodType string `json:"blood_type"`
	Date      string `json:"date"` // RFC3339
}

// HistoryEntry is the donation history of one account.
type HistoryEntry struct {
	Account   string          `json:"account"`
	Donations []DonationEntry `json:"donations"`
	Source    string          `json:"source"`     // "cache" or "rpc"
	FetchedAt string          `json:"fetched_at"` // RFC3339
}

// HistoriesRequest asks for the histories of several accounts at once.
type HistoriesRequest struct {
	Accounts []string `json:"accounts"`
}

// ErrorEntry captures per-account errors that occurred while fetching.
type ErrorEntry struct {
	Account string `json:"account"`
	Error   string `json:"error"`
}

// HistoriesResponse is the JSON response for the batch history endpoint.
type HistoriesResponse struct {
	Histories []HistoryEntry `json:"histories"`
	Errors    []ErrorEntry   `json:"errors"`
}

func NowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates. An empty
// string yields now.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

// NewDonationEntry renders d for JSON output.
func NewDonationEntry(d donation.Donation) DonationEntry {
	return DonationEntry{
		DonorName: d.DonorName,
		BloodType: d.BloodType,
		Date:      d.Date.UTC().Format(time.RFC3339),
	}
}

// NewHistoryEntry renders a decoded history.
func NewHistoryEntry(account string, donations []donation.Donation, source string, ts time.Time) HistoryEntry {
	entries := make([]DonationEntry, 0, len(donations))
	for _, d := range donations {
		entries = append(entries, NewDonationEntry(d))
	}
	return HistoryEntry{
		Account:   account,
		Donations: entries,
		Source:    source,
		FetchedAt: ts.UTC().Format(time.RFC3339),
	}
}

// CountByBloodType tallies donations per blood type.
func CountByBloodType(entries []DonationEntry) map[string]int {
	out := make(map[string]int)
	for i := range entries {
		out[entries[i].BloodType]++
	}
	return out
}
