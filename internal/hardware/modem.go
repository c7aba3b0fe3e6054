package hardware

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// a7670e drives the SIMCom A7670E LTE modem over its AT command port.
// Commands are serialized; the modem cannot interleave conversations.
type a7670e struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

// NewA7670ESource opens the modem's AT command serial port.
func NewA7670ESource(portName string, baudRate uint) (ModemSource, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: 500, // ms; AT responses are prompt
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("modem serial open %s: %w", portName, err)
	}

	m := &a7670e{port: port, reader: bufio.NewReader(port)}

	// Probe: a dead port here means the modem is off or mis-wired.
	if _, err := m.sendAT("AT", "OK"); err != nil {
		port.Close()
		return nil, fmt.Errorf("modem not responding on %s: %w", portName, err)
	}

	log.Printf("modem: A7670E responding on %s at %d baud", portName, baudRate)
	return m, nil
}

func (m *a7670e) NetworkInfo() (ModemNetworkInfo, error) {
	csq, err := m.sendAT("AT+CSQ", "+CSQ:")
	if err != nil {
		return ModemNetworkInfo{}, err
	}
	creg, err := m.sendAT("AT+CREG?", "+CREG:")
	if err != nil {
		return ModemNetworkInfo{}, err
	}
	cops, err := m.sendAT("AT+COPS?", "+COPS:")
	if err != nil {
		return ModemNetworkInfo{}, err
	}
	return ModemNetworkInfo{
		SignalQuality:       csq,
		NetworkRegistration: creg,
		OperatorInfo:        cops,
	}, nil
}

func (m *a7670e) SetFlightMode(enable bool) error {
	cmd := "AT+CFUN=1"
	if enable {
		cmd = "AT+CFUN=4"
	}
	if _, err := m.sendAT(cmd, "OK"); err != nil {
		return fmt.Errorf("setting flight mode: %w", err)
	}
	return nil
}

func (m *a7670e) Close() error {
	return m.port.Close()
}

// sendAT writes one command and scans response lines until one carries the
// expected prefix. ERROR from the modem, or running out of lines on the
// timed-out port, fails the command.
func (m *a7670e) sendAT(cmd, expect string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.port.Write([]byte(cmd + "\r\n")); err != nil {
		return "", fmt.Errorf("modem write %q: %w", cmd, err)
	}

	for i := 0; i < 20; i++ {
		line, err := m.reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if strings.Contains(line, "ERROR") {
				return "", fmt.Errorf("modem rejected %q: %s", cmd, line)
			}
			if strings.Contains(line, expect) {
				return line, nil
			}
		}
		if err != nil {
			return "", fmt.Errorf("modem read after %q: %w", cmd, err)
		}
	}
	return "", fmt.Errorf("modem gave no %q response to %q", expect, cmd)
}
