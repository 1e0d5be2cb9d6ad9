package app

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/upstream"
)

var supportedTags = []language.Tag{
	language.English,
	language.MustParse("pt-BR"),
}

var tagMatcher = language.NewMatcher(supportedTags)

func init() {
	en := language.English
	message.SetString(en, "status.retrying.rate_limited", "Rate limited, retrying in %.1f seconds (attempt %d)")
	message.SetString(en, "status.retrying.network", "Connection problem, retrying in %.1f seconds (attempt %d)")
	message.SetString(en, "status.failover", "Proxy %s is not responding, switching proxies")
	message.SetString(en, "status.error.not_found", "User %s was not found")
	message.SetString(en, "status.error.rate_limited", "The profile service is busy, try again shortly")
	message.SetString(en, "status.error.network", "Could not reach the profile service")
	message.SetString(en, "status.error.upstream", "The profile service answered with HTTP %d")
	message.SetString(en, "status.error.invalid", "Enter a username")
	message.SetString(en, "status.error.unknown", "Something went wrong loading %s")

	pt := language.MustParse("pt-BR")
	message.SetString(pt, "status.retrying.rate_limited", "Limite de requisições atingido, tentando novamente em %.1f segundos (tentativa %d)")
	message.SetString(pt, "status.retrying.network", "Problema de conexão, tentando novamente em %.1f segundos (tentativa %d)")
	message.SetString(pt, "status.failover", "O proxy %s não responde, trocando de proxy")
	message.SetString(pt, "status.error.not_found", "Usuário %s não encontrado")
	message.SetString(pt, "status.error.rate_limited", "O serviço de perfis está ocupado, tente novamente em instantes")
	message.SetString(pt, "status.error.network", "Não foi possível acessar o serviço de perfis")
	message.SetString(pt, "status.error.upstream", "O serviço de perfis respondeu com HTTP %d")
	message.SetString(pt, "status.error.invalid", "Informe um nome de usuário")
	message.SetString(pt, "status.error.unknown", "Algo deu errado ao carregar %s")
}

// ResolveLocale matches value against the supported locales, falling back
// to English.
func ResolveLocale(value string) language.Tag {
	value = strings.TrimSpace(value)
	if value == "" {
		return language.English
	}
	tag, err := language.Parse(value)
	if err != nil {
		return language.English
	}
	_, index, confidence := tagMatcher.Match(tag)
	if confidence == language.No {
		return language.English
	}
	return supportedTags[index]
}

// StatusText renders user-facing progress and failure messages.
type StatusText struct {
	printer *message.Printer
}

// NewStatusText builds a renderer for tag.
func NewStatusText(tag language.Tag) StatusText {
	return StatusText{printer: message.NewPrinter(tag)}
}

// Progress describes a retry or failover notification.
func (s StatusText) Progress(st upstream.Status) string {
	if st.Kind == upstream.StatusFailover {
		return s.printer.Sprintf("status.failover", st.Proxy)
	}
	key := "status.retrying.network"
	if st.Reason == upstream.ReasonRateLimited {
		key = "status.retrying.rate_limited"
	}
	return s.printer.Sprintf(key, st.Delay.Seconds(), st.Attempt)
}

// Failure describes why a profile lookup for username failed.
func (s StatusText) Failure(username string, err error) string {
	if err == nil {
		return ""
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNotFound:
		return s.printer.Sprintf("status.error.not_found", username)
	case apperrors.CodeRateLimited:
		return s.printer.Sprintf("status.error.rate_limited")
	case apperrors.CodeNetwork:
		return s.printer.Sprintf("status.error.network")
	case apperrors.CodeInvalidArgument:
		return s.printer.Sprintf("status.error.invalid")
	case apperrors.CodeUpstreamHTTP:
		status, _ := upstream.StatusCode(err)
		return s.printer.Sprintf("status.error.upstream", status)
	}
	return s.printer.Sprintf("status.error.unknown", username)
}
