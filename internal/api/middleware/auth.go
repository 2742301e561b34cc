package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// SubjectKey hält die aus dem Token gelesene Subjekt-ID
const SubjectKey = "subject_id"

var errMissingToken = errors.New("authentication token is missing")

// Auth prüft ein HS256-Bearer-Token. Ohne Secret ist die Prüfung deaktiviert
// und die Anfrage wird unverändert durchgereicht.
func Auth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		subject, err := subjectFromRequest(c.Request, key)
		if err != nil {
			log.WithField("path", c.FullPath()).Debugf("Rejected token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   T(c, "unauthorized"),
			})
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// AuthenticatedSubject liefert die Subjekt-ID des geprüften Tokens
func AuthenticatedSubject(c *gin.Context) (string, bool) {
	v, ok := c.Get(SubjectKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func subjectFromRequest(r *http.Request, key []byte) (string, error) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}

	token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	// "sub" ist der Standard, "user_id" wird von älteren Clients gesendet
	for _, name := range []string{"sub", "user_id"} {
		if s, ok := claims[name].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", errors.New("token carries no subject claim")
}

// SignToken erstellt ein HS256-Token für subject (für CLI und Tests)
func SignToken(secret, subject string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
