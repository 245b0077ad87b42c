package log

import "log/slog"

func InstanceID[T ~string](id T) slog.Attr {
	return slog.String("instance_id", string(id))
}

func Workflow[T ~string](typ T) slog.Attr {
	return slog.String("workflow", string(typ))
}

func Step[T ~string](name T) slog.Attr {
	return slog.String("step", string(name))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Cursor(cursor int) slog.Attr {
	return slog.Int("cursor", cursor)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
