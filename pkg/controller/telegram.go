package controller

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/schedule"
	"github.com/sigurn/crc16"
)

// Schedule telegrams use the line layout of DSMR P1 telegrams:
//
//	/BSX5 <device_id>
//	0-0:96.1.1(<schedule_id>)
//	0-0:1.0.0(HHMMSS)(+0010.000*kW)
//	...
//	!CRC16
const telegramHeader = "/BSX5"

var (
	crcTable = crc16.MakeTable(crc16.CRC16_ARC)

	intervalPattern = regexp.MustCompile(`0-0:1\.0\.0\((\d{6})\)\(([+-]\d+\.\d{3})\*kW\)`)
	refPattern      = regexp.MustCompile(`0-0:96\.1\.1\(([^)]*)\)`)
)

func EncodeTelegram(s *schedule.Schedule) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\r\n", telegramHeader, s.DeviceID)
	fmt.Fprintf(&b, "0-0:96.1.1(%s)\r\n", s.ScheduleID)
	for i, iv := range s.Intervals {
		if iv.StartTime == nil || iv.PowerKW == nil {
			return "", fmt.Errorf("interval %d is incomplete", i)
		}
		fmt.Fprintf(&b, "0-0:1.0.0(%02d%02d%02d)(%+09.3f*kW)\r\n",
			iv.StartTime.Hour(), iv.StartTime.Minute(), iv.StartTime.Second(), *iv.PowerKW)
	}
	b.WriteString("!")

	checksum := crc16.Checksum([]byte(b.String()), crcTable)
	fmt.Fprintf(&b, "%04X\r\n", checksum)
	return b.String(), nil
}

// ValidateTelegramCRC checks the CRC16/ARC over everything up to and
// including the "!" marker.
func ValidateTelegramCRC(telegram string) bool {
	parts := strings.Split(telegram, "!")
	if len(parts) != 2 || len(parts[1]) < 4 {
		return false
	}

	data := parts[0] + "!"
	givenCRC := parts[1][:4]
	calcCRC := fmt.Sprintf("%04X", crc16.Checksum([]byte(data), crcTable))
	return strings.ToUpper(givenCRC) == calcCRC
}

// DecodeTelegram reads a schedule telegram back, as the battery firmware
// does. Only the fields carried on the wire are filled.
func DecodeTelegram(telegram string) (*schedule.Schedule, error) {
	if !strings.HasPrefix(telegram, telegramHeader+" ") {
		return nil, fmt.Errorf("missing %s header", telegramHeader)
	}
	if !ValidateTelegramCRC(telegram) {
		return nil, fmt.Errorf("invalid CRC")
	}

	headerLine, _, _ := strings.Cut(telegram, "\r\n")
	s := &schedule.Schedule{DeviceID: strings.TrimSpace(strings.TrimPrefix(headerLine, telegramHeader))}
	if match := refPattern.FindStringSubmatch(telegram); match != nil {
		s.ScheduleID = match[1]
	}

	for _, match := range intervalPattern.FindAllStringSubmatch(telegram, -1) {
		hh, _ := strconv.Atoi(match[1][0:2])
		mm, _ := strconv.Atoi(match[1][2:4])
		ss, _ := strconv.Atoi(match[1][4:6])
		power, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			return nil, err
		}
		s.Intervals = append(s.Intervals, schedule.NewInterval(schedule.NewTimeOfDay(hh, mm, ss), power))
	}
	return s, nil
}

// parseReply interprets the single line answer of the battery:
// "ACK <schedule_id>" or "NAK <reason>".
func parseReply(line, scheduleID string) (bool, error) {
	line = strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "ACK":
		if rest != "" && rest != scheduleID {
			return false, fmt.Errorf("acknowledged %q while sending %q", rest, scheduleID)
		}
		return true, nil
	case "NAK":
		if rest == "" {
			rest = "no reason given"
		}
		return false, fmt.Errorf("%w: %s", ErrTelegramRejected, rest)
	default:
		return false, fmt.Errorf("unexpected reply %q", line)
	}
}
