package signaling

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tarm/serial"
)

// PanelSignal reads button presses from a wired alarm panel over a
// serial port. The panel firmware sends one character per press,
// terminated by a semicolon.
type PanelSignal struct {
	port     *serial.Port
	portName string
	baud     int
	mutex    sync.Mutex
	callback func(string) error
}

// NewPanelSignal creates a panel signal handler. The callback runs for
// each decoded signal.
func NewPanelSignal(portName string, baud int, callback func(string) error) *PanelSignal {
	return &PanelSignal{
		portName: portName,
		baud:     baud,
		callback: callback,
	}
}

// Connect opens the serial port and starts listening.
func (p *PanelSignal) Connect() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.port != nil {
		return nil
	}

	port, err := serial.OpenPort(&serial.Config{
		Name: p.portName,
		Baud: p.baud,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port: %v", err)
	}
	p.port = port

	go p.listen()
	return nil
}

func (p *PanelSignal) listen() {
	reader := bufio.NewReader(p.port)
	var buffer strings.Builder

	for {
		b, err := reader.ReadByte()
		if err != nil {
			log.Printf("[signaling] Error reading from serial port: %v", err)
			break
		}

		// Each signal is terminated with a semicolon.
		if b == ';' {
			if buffer.Len() > 0 {
				signal := buffer.String()
				if p.callback != nil {
					if err := p.callback(signal); err != nil {
						log.Printf("[signaling] Error handling signal %q: %v", signal, err)
					}
				}
				buffer.Reset()
			}
		} else {
			buffer.WriteByte(b)
		}
	}
}

// Close closes the serial port connection.
func (p *PanelSignal) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.port != nil {
		err := p.port.Close()
		p.port = nil
		return err
	}
	return nil
}
