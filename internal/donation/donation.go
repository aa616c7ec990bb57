// Package donation encodes blood donation records the way the Bloodchain
// program stores them in account data.
//
// A record is 43 bytes: a 32-byte zero-padded donor name, a 3-byte
// zero-padded blood type and the donation date as little-endian unix
// seconds. An account's history is a plain concatenation of records.
package donation

import (
	"bytes"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"
)

const (
	NameSize      = 32
	BloodTypeSize = 3
	dateSize      = 8

	// RecordSize is the packed size of a single Donation.
	RecordSize = NameSize + BloodTypeSize + dateSize
)

var (
	ErrEmptyName        = errors.New("donor name is empty")
	ErrNameTooLong      = errors.New("donor name exceeds 32 bytes")
	ErrInvalidBloodType = errors.New("invalid blood type")
	ErrMissingDate      = errors.New("donation date is missing")
	ErrMalformedRecord  = errors.New("malformed donation record")
	ErrMalformedHistory = errors.New("malformed donation history")
)

// BloodTypes lists the accepted ABO/Rh groups.
var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// Donation is a single donation entry.
type Donation struct {
	DonorName string
	BloodType string
	Date      time.Time
}

// NormalizeBloodType upper-cases and trims s and reports whether it is a
// known blood type.
func NormalizeBloodType(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, bt := range BloodTypes {
		if bt == s {
			return s, true
		}
	}
	return "", false
}

// Validate checks d and returns it with its blood type normalized.
func Validate(d Donation) (Donation, error) {
	name := strings.TrimSpace(d.DonorName)
	if name == "" {
		return Donation{}, ErrEmptyName
	}
	if len(name) > NameSize {
		return Donation{}, errors.Wrapf(ErrNameTooLong, "%d bytes", len(name))
	}
	bt, ok := NormalizeBloodType(d.BloodType)
	if !ok {
		return Donation{}, errors.Wrapf(ErrInvalidBloodType, "%q", d.BloodType)
	}
	if d.Date.IsZero() || d.Date.Unix() <= 0 {
		return Donation{}, ErrMissingDate
	}
	return Donation{DonorName: name, BloodType: bt, Date: d.Date.UTC().Truncate(time.Second)}, nil
}

// record is the on-chain layout of a Donation. Every field is fixed-size, so
// the bin encoding is exactly RecordSize bytes with the date little-endian.
type record struct {
	Name      [NameSize]byte
	BloodType [BloodTypeSize]byte
	Date      int64
}

// Pack validates d and writes its RecordSize-byte wire form.
func Pack(d Donation) ([]byte, error) {
	v, err := Validate(d)
	if err != nil {
		return nil, err
	}
	rec := record{Date: v.Date.Unix()}
	copy(rec.Name[:], v.DonorName)
	copy(rec.BloodType[:], v.BloodType)

	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	if err := bin.NewBinEncoder(buf).Encode(rec); err != nil {
		return nil, errors.Wrap(err, "encode donation")
	}
	return buf.Bytes(), nil
}

// Unpack decodes exactly one record.
func Unpack(src []byte) (Donation, error) {
	if len(src) != RecordSize {
		return Donation{}, errors.Wrapf(ErrMalformedRecord, "got %d bytes, want %d", len(src), RecordSize)
	}
	var rec record
	if err := bin.NewBinDecoder(src).Decode(&rec); err != nil {
		return Donation{}, errors.Wrapf(ErrMalformedRecord, "%v", err)
	}
	return Donation{
		DonorName: trimZero(rec.Name[:]),
		BloodType: trimZero(rec.BloodType[:]),
		Date:      time.Unix(rec.Date, 0).UTC(),
	}, nil
}

func trimZero(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

func isEmptySlot(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// PackHistory concatenates the packed form of every donation in order.
func PackHistory(history []Donation) ([]byte, error) {
	out := make([]byte, 0, len(history)*RecordSize)
	for i, d := range history {
		rec, err := Pack(d)
		if err != nil {
			return nil, errors.Wrapf(err, "donation %d", i)
		}
		out = append(out, rec...)
	}
	return out, nil
}

// UnpackHistory decodes account data into donations. All-zero records are
// allocated but unused slots and are skipped.
func UnpackHistory(data []byte) ([]Donation, error) {
	if len(data)%RecordSize != 0 {
		return nil, errors.Wrapf(ErrMalformedHistory, "length %d is not a multiple of %d", len(data), RecordSize)
	}
	history := make([]Donation, 0, len(data)/RecordSize)
	for off := 0; off < len(data); off += RecordSize {
		rec := data[off : off+RecordSize]
		if isEmptySlot(rec) {
			continue
		}
		d, err := Unpack(rec)
		if err != nil {
			return nil, err
		}
		history = append(history, d)
	}
	return history, nil
}
