package model

import "time"

// Clock задаёт источник времени. Передаётся явно во все операции, ставящие отметки времени.
type Clock interface {
	Now() time.Time
}

// SystemClock читает системные часы.
type SystemClock struct{}

// Now возвращает текущее время в UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
