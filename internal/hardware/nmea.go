package hardware

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// nmeaSource reads a UART GNSS receiver directly, independent of gpsd.
// RMC carries position/speed/course, GGA carries altitude and satellite
// count; a fix is assembled from both.
type nmeaSource struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
	last   SerialFix
}

// NewNMEASource opens the receiver's serial port.
func NewNMEASource(portName string, baudRate uint) (PositionSource, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: 500, // ms
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gps serial open %s: %w", portName, err)
	}

	log.Printf("gps: serial receiver opened on %s at %d baud", portName, baudRate)
	return &nmeaSource{port: port, reader: bufio.NewReader(port)}, nil
}

// Read scans sentences until it has seen both an RMC and a GGA, or runs
// out of lines; partial updates still refresh the retained fix.
func (s *nmeaSource) Read() (SerialFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gotRMC, gotGGA := false, false
	for i := 0; i < 40 && !(gotRMC && gotGGA); i++ {
		raw, err := s.reader.ReadString('\n')
		line := strings.TrimSpace(raw)
		if line != "" && strings.HasPrefix(line, "$") {
			sentence, perr := nmea.Parse(line)
			if perr != nil {
				// Partial sentences are routine on a lossy UART.
				continue
			}
			switch sentence.DataType() {
			case nmea.TypeRMC:
				m := sentence.(nmea.RMC)
				s.last.Valid = m.Validity == "A"
				s.last.Latitude = m.Latitude
				s.last.Longitude = m.Longitude
				s.last.SpeedKnots = m.Speed
				s.last.CourseDeg = m.Course
				s.last.TimeUTC = m.Time.String()
				gotRMC = true
			case nmea.TypeGGA:
				g := sentence.(nmea.GGA)
				s.last.AltitudeM = g.Altitude
				s.last.Satellites = int(g.NumSatellites)
				if q, qerr := strconv.Atoi(g.FixQuality); qerr == nil {
					s.last.FixQuality = q
				}
				gotGGA = true
			}
		}
		if err != nil {
			break
		}
	}

	if !gotRMC && !gotGGA {
		return s.last, fmt.Errorf("no NMEA sentences received")
	}
	return s.last, nil
}

func (s *nmeaSource) Close() error {
	return s.port.Close()
}
