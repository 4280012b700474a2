package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Config describes the IMAP account that receives MLS export emails.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// FromAny restricts which senders are trusted to deliver exports.
	// Empty accepts everything (warned about at config validation).
	FromAny []string
}

// PullExports fetches unseen messages, saves every .csv attachment from an
// accepted sender into destDir and marks the drained messages seen. Returns
// the filenames written. Best-effort per message: a bad attachment skips
// the message, it does not abort the pull.
func PullExports(ctx context.Context, cfg Config, destDir string) ([]string, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	c, err := dialAndLogin(ctx, addr, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}
	defer logoutAndClose(c)

	if _, err := c.Select("INBOX", &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		return nil, fmt.Errorf("imap select inbox: %w", err)
	}

	msgs, err := fetchUnseen(ctx, c, 50)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	var saved []string
	var drained []imap.UID
	for _, m := range msgs {
		if !senderAccepted(m.From, cfg.FromAny) {
			continue
		}
		names, err := saveCSVAttachments(m.Raw, destDir)
		if err != nil {
			log.Printf("[mailbox] uid=%d attachment parse failed: %v", m.UID, err)
			continue
		}
		if len(names) > 0 {
			log.Printf("[mailbox] uid=%d from=%q saved=%v", m.UID, m.From, names)
			saved = append(saved, names...)
		}
		drained = append(drained, m.UID)
	}

	if err := markSeen(c, drained); err != nil {
		log.Printf("[mailbox] mark seen failed: %v", err)
	}
	return saved, nil
}

type message struct {
	UID  imap.UID
	From string
	Raw  []byte
}

func dialAndLogin(ctx context.Context, addr, username, password string) (*imapclient.Client, error) {
	if username == "" || password == "" {
		return nil, errors.New("imap username/password is required")
	}

	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// best-effort close on context cancel
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}

// fetchUnseen pulls up to max unseen messages with full raw bytes, using
// BODY.PEEK[] so failures don't lose the unseen flag.
func fetchUnseen(ctx context.Context, c *imapclient.Client, max int) ([]message, error) {
	cutoff := time.Now().AddDate(0, -1, 0)
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   cutoff,
	}

	searchData, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	var out []message
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		var m message
		m.UID = buf.UID
		if buf.Envelope != nil && len(buf.Envelope.From) > 0 {
			m.From = buf.Envelope.From[0].Addr()
		}
		if b := buf.FindBodySection(bodyAll); b != nil {
			m.Raw = append([]byte(nil), b...)
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

func markSeen(c *imapclient.Client, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	storeFlags := &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}
	cmd := c.Store(imap.UIDSetNum(uids...), storeFlags, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

func logoutAndClose(c *imapclient.Client) {
	if err := c.Logout().Wait(); err != nil {
		log.Printf("[mailbox] imap logout: %v", err)
	}
	_ = c.Close()
}

func senderAccepted(from string, allow []string) bool {
	if len(allow) == 0 {
		return true
	}
	f := strings.ToLower(from)
	for _, a := range allow {
		if strings.Contains(f, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// saveCSVAttachments walks the MIME tree of one raw message and writes each
// .csv attachment to destDir, de-duplicating names with a timestamp prefix.
func saveCSVAttachments(raw []byte, destDir string) ([]string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, err
	}

	var saved []string
	err = walkParts(msg.Header.Get("Content-Type"), body,
		func(filename string, content []byte) error {
			path := uniquePath(destDir, filename)
			if err := os.WriteFile(path, content, 0o644); err != nil {
				return err
			}
			saved = append(saved, filepath.Base(path))
			return nil
		})
	return saved, err
}

// walkParts descends the MIME tree, handing every .csv attachment to save.
// Nested multiparts happen with forwarded exports.
func walkParts(contentType string, body []byte, save func(string, []byte) error) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return nil
		}
		partBody, err := io.ReadAll(p)
		if err != nil {
			continue
		}

		partType := p.Header.Get("Content-Type")
		if pm, _, e := mime.ParseMediaType(partType); e == nil && strings.HasPrefix(pm, "multipart/") {
			if err := walkParts(partType, partBody, save); err != nil {
				return err
			}
			continue
		}

		filename := p.FileName()
		if filename == "" || !strings.EqualFold(filepath.Ext(filename), ".csv") {
			continue
		}
		content := decodeTransfer(partBody, p.Header.Get("Content-Transfer-Encoding"))
		if err := save(filepath.Base(filename), content); err != nil {
			return err
		}
	}
}

func decodeTransfer(body []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		dec, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(bytes.TrimSpace(body))))
		if err == nil {
			return dec
		}
	case "quoted-printable":
		dec, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
		if err == nil {
			return dec
		}
	}
	return body
}

func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	return filepath.Join(dir, stamp+"_"+name)
}
