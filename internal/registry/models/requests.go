package models

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	id "poe/pkg/domain"
	dErrors "poe/pkg/domain-errors"
)

// Field encodings accepted for the id and name of a record in requests.
const (
	EncodingUTF8   = "utf8"
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// RecordRequest carries record content over the wire. ID and Name are
// decoded according to Encoding, which defaults to utf8.
type RecordRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Age      uint8  `json:"age"`
	Encoding string `json:"encoding,omitempty"`
}

// TransferRequest is a RecordRequest plus the recipient account.
type TransferRequest struct {
	RecordRequest
	To string `json:"to"`
}

// ToRecord decodes the request fields and applies record bounds.
func (r RecordRequest) ToRecord() (Record, error) {
	encoding := strings.ToLower(strings.TrimSpace(r.Encoding))
	recordID, err := decodeField(r.ID, encoding, "id")
	if err != nil {
		return Record{}, err
	}
	name, err := decodeField(r.Name, encoding, "name")
	if err != nil {
		return Record{}, err
	}
	return NewRecord(recordID, name, r.Age)
}

// Recipient validates the transfer target.
func (r TransferRequest) Recipient() (id.AccountID, error) {
	return id.ParseAccountID(r.To)
}

// EncodeField is the inverse of the request decoding for one field.
func EncodeField(b []byte, encoding string) (string, error) {
	switch encoding {
	case "", EncodingUTF8:
		return string(b), nil
	case EncodingHex:
		return hex.EncodeToString(b), nil
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return "", unknownEncoding(encoding)
	}
}

func decodeField(value, encoding, field string) ([]byte, error) {
	switch encoding {
	case "", EncodingUTF8:
		return []byte(value), nil
	case EncodingHex:
		b, err := hex.DecodeString(value)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, field+" is not valid hex")
		}
		return b, nil
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, field+" is not valid base64")
		}
		return b, nil
	default:
		return nil, unknownEncoding(encoding)
	}
}

func unknownEncoding(encoding string) error {
	return dErrors.New(dErrors.CodeValidation, "unknown encoding "+strings.TrimSpace(encoding)+", want utf8, hex or base64")
}
