package inbox

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// messageNamespace scopes the content-derived message ids.
var messageNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("expense-sync/inbox"))

// backupSMS is one <sms> element of an SMS backup export.
type backupSMS struct {
	Address string `xml:"address,attr"`
	Body    string `xml:"body,attr"`
	Date    string `xml:"date,attr"`
	Type    string `xml:"type,attr"`
}

type backupFile struct {
	XMLName xml.Name    `xml:"smses"`
	SMS     []backupSMS `xml:"sms"`
}

// ReadBackup decodes an SMS backup export into messages. Only received
// messages (type 1, or no type) are kept. Ids are derived from sender, date
// and body so that importing the same backup twice delivers nothing new.
func ReadBackup(r io.Reader) ([]*Message, error) {
	var backup backupFile
	if err := xml.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("ReadBackup: decode: %w", err)
	}

	msgs := make([]*Message, 0, len(backup.SMS))
	for _, s := range backup.SMS {
		if s.Type != "" && s.Type != "1" {
			continue
		}

		msg := &Message{
			ID:     MessageID(s.Address, s.Date, s.Body),
			Source: SourceBackup,
			Sender: s.Address,
			Body:   s.Body,
		}
		if millis, err := strconv.ParseInt(s.Date, 10, 64); err == nil {
			msg.ReceivedAt = time.UnixMilli(millis).UTC()
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// MessageID derives a stable message id from its parts.
func MessageID(parts ...string) string {
	h := uuid.NewSHA1(messageNamespace, []byte(fmt.Sprintf("%q", parts)))
	return h.String()
}
