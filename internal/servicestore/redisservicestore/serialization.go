package redisservicestore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hookdeck/hostnode/internal/servicestore/driver"
)

func registrationToHash(reg driver.Registration) map[string]interface{} {
	return map[string]interface{}{
		"id":                reg.ID,
		"host":              reg.Host,
		"binary":            reg.Binary,
		"topic":             reg.Topic,
		"report_count":      strconv.Itoa(reg.ReportCount),
		"availability_zone": reg.AvailabilityZone,
		"created_at":        reg.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":        reg.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func parseRegistrationHash(hash map[string]string) (*driver.Registration, error) {
	reg := &driver.Registration{
		ID:               hash["id"],
		Host:             hash["host"],
		Binary:           hash["binary"],
		Topic:            hash["topic"],
		AvailabilityZone: hash["availability_zone"],
	}

	var err error
	if v := hash["report_count"]; v != "" {
		if reg.ReportCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid report_count %q: %w", v, err)
		}
	}
	if reg.CreatedAt, err = parseTime(hash["created_at"]); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if reg.UpdatedAt, err = parseTime(hash["updated_at"]); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}
	return reg, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
