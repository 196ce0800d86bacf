// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/diablo/pkg/diablo"
	"github.com/Thermoquad/diablo/pkg/linkframe"
)

// PacketConn moves whole diablo packets over a transport
type PacketConn interface {
	// ReadPacket blocks until the next packet arrives. A link error
	// (see isLinkError) drops one damaged frame and the caller may
	// keep reading.
	ReadPacket() ([]byte, error)
	WritePacket(p []byte) error
	Close() error
}

// addressedConn is implemented by transports that can reach a single board
type addressedConn interface {
	WritePacketTo(p []byte, addr string) error
}

// ErrConnectionClosed is returned when reading from a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// isLinkError reports whether err is a recoverable framing error
func isLinkError(err error) bool {
	return errors.Is(err, linkframe.ErrCRC) ||
		errors.Is(err, linkframe.ErrOverflow) ||
		errors.Is(err, linkframe.ErrFraming)
}

// FramedConnection carries packets in link frames over a byte stream
type FramedConnection struct {
	rwc    io.ReadWriteCloser
	frames *linkframe.Reader
	wmu    sync.Mutex
}

func newFramedConnection(rwc io.ReadWriteCloser) *FramedConnection {
	return &FramedConnection{
		rwc:    rwc,
		frames: linkframe.NewReader(rwc, linkframe.DefaultMaxPayload),
	}
}

func (f *FramedConnection) ReadPacket() ([]byte, error) {
	p, err := f.frames.Next()
	if err == io.EOF {
		return nil, ErrConnectionClosed
	}
	return p, err
}

func (f *FramedConnection) WritePacket(p []byte) error {
	frame, err := linkframe.Encode(p)
	if err != nil {
		return err
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	_, err = f.rwc.Write(frame)
	return err
}

func (f *FramedConnection) Close() error {
	return f.rwc.Close()
}

// WebSocketConnection carries one packet per binary message
type WebSocketConnection struct {
	conn   *websocket.Conn
	closed atomic.Bool // Set once the connection has failed or closed
	wmu    sync.Mutex
}

func (w *WebSocketConnection) ReadPacket() ([]byte, error) {
	// Return immediately if connection is known to be closed
	if w.closed.Load() {
		return nil, ErrConnectionClosed
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// A local Close makes the read fail; report it as a clean close
			if w.closed.Swap(true) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrConnectionClosed
			}
			return nil, err
		}

		// Text messages are not part of the protocol
		if messageType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (w *WebSocketConnection) WritePacket(p []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (w *WebSocketConnection) Close() error {
	w.closed.Store(true)
	w.wmu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.conn.Close()
}

// UDPConnection carries one packet per datagram
type UDPConnection struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	buf    []byte
	closed chan struct{}
	once   sync.Once
}

func (u *UDPConnection) ReadPacket() ([]byte, error) {
	n, from, err := u.conn.ReadFromUDP(u.buf)
	if err != nil {
		select {
		case <-u.closed:
			return nil, ErrConnectionClosed
		default:
		}
		return nil, err
	}
	log.Trace().Str("from", from.String()).Int("bytes", n).Msg("datagram")
	p := make([]byte, n)
	copy(p, u.buf[:n])
	return p, nil
}

func (u *UDPConnection) WritePacket(p []byte) error {
	if u.remote == nil {
		return errors.New("no remote address (use --remote)")
	}
	_, err := u.conn.WriteToUDP(p, u.remote)
	return err
}

// WritePacketTo sends p to a single board instead of the remote address
func (u *UDPConnection) WritePacketTo(p []byte, addr string) error {
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	_, err = u.conn.WriteToUDP(p, to)
	return err
}

func (u *UDPConnection) Close() error {
	u.once.Do(func() { close(u.closed) })
	return u.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (PacketConn, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return newFramedConnection(port), nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (PacketConn, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Validate scheme
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// OpenUDPConnection listens on listen and sends to remote, which may be empty
// for a receive-only connection
func OpenUDPConnection(listen, remote string) (PacketConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %s: %w", listen, err)
	}

	var raddr *net.UDPAddr
	if remote != "" {
		raddr, err = net.ResolveUDPAddr("udp", remote)
		if err != nil {
			return nil, fmt.Errorf("invalid remote address %s: %w", remote, err)
		}
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	return &UDPConnection{
		conn:   conn,
		remote: raddr,
		buf:    make([]byte, 64*1024),
		closed: make(chan struct{}),
	}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("DIABLO_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens a WebSocket, UDP or serial connection based on flags
func OpenConnection() (PacketConn, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if udpListen != "" {
		conn, err := OpenUDPConnection(udpListen, udpRemote)
		if err != nil {
			return nil, "", err
		}

		info := fmt.Sprintf("UDP: %s", udpListen)
		if udpRemote != "" {
			info += fmt.Sprintf(" -> %s", udpRemote)
		}
		return conn, info, nil
	}

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", errors.New("one of --port, --url or --udp must be specified")
}

// closeOnCancel closes conn when ctx ends so a blocked ReadPacket returns
func closeOnCancel(ctx context.Context, conn PacketConn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
}

// newEncoder returns an encoder using the configured codec settings, stamping
// headers with milliseconds since start
func newEncoder(start time.Time) *diablo.Encoder {
	opts := append(appConfig.Codec.Options(), diablo.WithClock(diablo.MillisClock(start)))
	return diablo.NewEncoder(opts...)
}

// newDecoder returns a decoder using the configured codec settings
func newDecoder() *diablo.Decoder {
	return diablo.NewDecoder(appConfig.Codec.Options()...)
}

// received is one item read from a connection
type received struct {
	at        time.Time
	raw       []byte
	packet    *diablo.Packet
	decodeErr error
	linkErr   error
}

// receive reads and decodes the next packet. Link and decode errors are
// reported in the result; only transport failures are returned as err. For a
// link error raw holds the damaged frame's wire bytes.
func receive(conn PacketConn, dec *diablo.Decoder) (received, error) {
	raw, err := conn.ReadPacket()
	r := received{at: time.Now(), raw: raw}
	if err != nil {
		if isLinkError(err) {
			r.linkErr = err
			var fe *linkframe.FrameError
			if errors.As(err, &fe) {
				r.raw = fe.Raw
			}
			return r, nil
		}
		return r, err
	}
	r.packet, r.decodeErr = dec.DecodePacket(raw)
	return r, nil
}

// readPackets runs receive on a goroutine until a transport error or until
// stop is closed. The packet channel is closed when the goroutine exits; the
// error channel gets the transport error, if any.
func readPackets(conn PacketConn, dec *diablo.Decoder, stop <-chan struct{}) (<-chan received, <-chan error) {
	packets := make(chan received, 16)
	readErr := make(chan error, 1)
	go func() {
		defer close(packets)
		for {
			r, err := receive(conn, dec)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case packets <- r:
			case <-stop:
				return
			}
		}
	}()
	return packets, readErr
}
