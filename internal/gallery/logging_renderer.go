package gallery

import (
	"time"

	"github.com/snappic/server/internal/observability"
)

// LoggingRenderer logs every visual mutation before passing it on
type LoggingRenderer struct {
	next   Renderer
	logger *observability.Logger
}

// NewLoggingRenderer wraps next
func NewLoggingRenderer(next Renderer, logger *observability.Logger) *LoggingRenderer {
	return &LoggingRenderer{next: next, logger: logger}
}

// Append implements Renderer
func (r *LoggingRenderer) Append(id, src, caption string) Element {
	l := r.logger.WithField("photo_id", id)
	l.WithFields(map[string]interface{}{"src": src, "caption": caption}).Info("photo shown")
	return &loggingElement{Element: r.next.Append(id, src, caption), logger: l, opacity: 1}
}

type loggingElement struct {
	Element
	logger  *observability.Logger
	opacity float64
}

func (e *loggingElement) SetOpacity(v float64) {
	// Only report visible steps; polls repeat the same value while a photo is idle
	if v != e.opacity {
		e.logger.Debugf("opacity %.2f", v)
		e.opacity = v
	}
	e.Element.SetOpacity(v)
}

func (e *loggingElement) FadeOut(d time.Duration) {
	e.logger.Infof("photo fading out over %s", d)
	e.Element.FadeOut(d)
}

func (e *loggingElement) Remove() {
	e.logger.Debug("photo removed")
	e.Element.Remove()
}
