package kasa

// https://www.softscheck.com/en/reverse-engineering-tp-link-hs110/#TP-Link%20Smart%20Home%20Protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	cmdSysinfo = `{"system":{"get_sysinfo":{}}}`
	kasaPort   = "9999"
)

// defined by kasa devices
type kasaDevice struct {
	System ksystem `json:"system"`
}

type ksystem struct {
	Sysinfo  ksysinfo `json:"get_sysinfo"`
	SetRelay result   `json:"set_relay_state"`
}

type ksysinfo struct {
	SWVersion  string `json:"sw_ver"`
	Model      string `json:"model"`
	DeviceID   string `json:"deviceId"`
	Alias      string `json:"alias"`
	RelayState int    `json:"relay_state"`
	Brightness int    `json:"brightness"`
}

type result struct {
	ErrorCode int    `json:"err_code"`
	ErrorMsg  string `json:"err_msg"`
}

type dimmerReply struct {
	Dimmer struct {
		SetBrightness result `json:"set_brightness"`
	} `json:"smartlife.iot.dimmer"`
}

// encrypt is the autokey XOR cipher, length-prefixed as the TCP protocol wants
func encrypt(plaintext string) []byte {
	n := len(plaintext)
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint32(n))
	ciphertext := buf.Bytes()

	key := byte(0xAB)
	for i := 0; i < n; i++ {
		c := plaintext[i] ^ key
		ciphertext = append(ciphertext, c)
		key = c
	}
	return ciphertext
}

func decrypt(ciphertext []byte) string {
	out := make([]byte, len(ciphertext))
	key := byte(0xAB)
	for i, c := range ciphertext {
		out[i] = c ^ key
		key = c
	}
	return string(out)
}

// address adds the kasa port when the configured address has none
func address(ip string) string {
	if _, _, err := net.SplitHostPort(ip); err == nil {
		return ip
	}
	return net.JoinHostPort(ip, kasaPort)
}

// sendTCP sends one command and reads the whole length-prefixed reply
func sendTCP(ip, cmd string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", address(ip), timeout)
	if err != nil {
		return "", fmt.Errorf("cannot connect to device: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(encrypt(cmd)); err != nil {
		return "", fmt.Errorf("cannot send command to device: %w", err)
	}

	var n uint32
	if err := binary.Read(conn, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("cannot read data from device: %w", err)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(conn, data); err != nil {
		return "", fmt.Errorf("cannot read data from device: %w", err)
	}
	return decrypt(data), nil
}

func getSysinfo(ip string, timeout time.Duration) (*ksysinfo, error) {
	res, err := sendTCP(ip, cmdSysinfo, timeout)
	if err != nil {
		return nil, err
	}
	var kd kasaDevice
	if err := json.Unmarshal([]byte(res), &kd); err != nil {
		return nil, err
	}
	return &kd.System.Sysinfo, nil
}

func setRelayState(ip string, on bool, timeout time.Duration) error {
	state := 0
	if on {
		state = 1
	}
	res, err := sendTCP(ip, fmt.Sprintf(`{"system":{"set_relay_state":{"state":%d}}}`, state), timeout)
	if err != nil {
		return err
	}
	var kd kasaDevice
	if err := json.Unmarshal([]byte(res), &kd); err != nil {
		return err
	}
	return replyError(kd.System.SetRelay)
}

func setBrightness(ip string, brightness int, timeout time.Duration) error {
	res, err := sendTCP(ip, fmt.Sprintf(`{"smartlife.iot.dimmer":{"set_brightness":{"brightness":%d}}}`, brightness), timeout)
	if err != nil {
		return err
	}
	var dr dimmerReply
	if err := json.Unmarshal([]byte(res), &dr); err != nil {
		return err
	}
	return replyError(dr.Dimmer.SetBrightness)
}

func replyError(r result) error {
	if r.ErrorCode != 0 {
		return fmt.Errorf("kasa error %d: %s", r.ErrorCode, r.ErrorMsg)
	}
	return nil
}
