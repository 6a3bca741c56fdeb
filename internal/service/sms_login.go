package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/locataire"
	"github.com/gestimmo/api/internal/util"
)

var (
	// ErrCodeInvalide signale un code SMS incorrect ou expiré.
	ErrCodeInvalide = errors.New("code invalide ou expiré")
	// ErrTropDeTentatives signale l'épuisement des essais autorisés.
	ErrTropDeTentatives = errors.New("trop de tentatives, demandez un nouveau code")
	// ErrRenvoiTropTot signale une demande de code avant la fin du délai.
	ErrRenvoiTropTot = errors.New("un code vient d'être envoyé, patientez avant d'en demander un autre")
)

const (
	codeSMSTTL      = 10 * time.Minute
	codeSMSCooldown = 60 * time.Second
	codeSMSEssais   = 5
)

type smsSender interface {
	Send(ctx context.Context, to, message string) error
}

func cleCodeSMS(telephone string) string {
	return "sms:code:" + telephone
}

func cleEssaisSMS(telephone string) string {
	return "sms:essais:" + telephone
}

func cleAttenteSMS(telephone string) string {
	return "sms:attente:" + telephone
}

// DemanderCodeSMS génère un code à six chiffres pour le téléphone d'un
// locataire connu et l'envoie par SMS. Le code n'est jamais journalisé
// ni retourné, seule son empreinte est gardée en Redis. Un téléphone
// inconnu ne provoque pas d'erreur distincte afin de ne pas révéler
// quels numéros ont un compte.
func (s *AuthService) DemanderCodeSMS(ctx context.Context, telephone string) error {
	normalized, err := util.FormatTelephone(telephone)
	if err != nil {
		return util.ErrTelephoneInvalide
	}

	loc, err := s.locataires.GetByTelephone(ctx, normalized)
	if err != nil {
		if errors.Is(err, locataire.ErrNotFound) {
			log.Warn().Msg("code sms demandé pour un téléphone inconnu")
			return nil
		}
		return err
	}

	attente, err := s.redis.Exists(ctx, cleAttenteSMS(loc.Telephone)).Result()
	if err != nil {
		return err
	}
	if attente > 0 {
		return ErrRenvoiTropTot
	}

	code, err := genererCodeSMS()
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, cleCodeSMS(loc.Telephone), auth.HashToken(code), codeSMSTTL).Err(); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, cleEssaisSMS(loc.Telephone)).Err(); err != nil && err != redis.Nil {
		return err
	}
	if err := s.redis.Set(ctx, cleAttenteSMS(loc.Telephone), "1", codeSMSCooldown).Err(); err != nil {
		return err
	}

	message := fmt.Sprintf("Votre code de connexion est %s. Il expire dans 10 minutes.", code)
	if err := s.sms.Send(ctx, loc.Telephone, message); err != nil {
		log.Error().Err(err).Msg("envoi du code sms échoué")
		return err
	}

	log.Info().Msg("code sms envoyé")
	return nil
}

// VerifierCodeSMS compare le code reçu avec l'empreinte en Redis et, en
// cas de succès, ouvre une session locataire. Le code est à usage
// unique et le nombre d'essais est borné.
func (s *AuthService) VerifierCodeSMS(ctx context.Context, telephone, code string) (*LoginResult, error) {
	normalized, err := util.FormatTelephone(telephone)
	if err != nil {
		return nil, ErrCodeInvalide
	}

	essais, err := s.redis.Incr(ctx, cleEssaisSMS(normalized)).Result()
	if err != nil {
		return nil, err
	}
	if essais == 1 {
		if err := s.redis.Expire(ctx, cleEssaisSMS(normalized), codeSMSTTL).Err(); err != nil {
			return nil, err
		}
	}
	if essais > codeSMSEssais {
		if err := s.redis.Del(ctx, cleCodeSMS(normalized)).Err(); err != nil && err != redis.Nil {
			return nil, err
		}
		return nil, ErrTropDeTentatives
	}

	attendu, err := s.redis.Get(ctx, cleCodeSMS(normalized)).Result()
	if err == redis.Nil {
		return nil, ErrCodeInvalide
	}
	if err != nil {
		return nil, err
	}
	if auth.HashToken(code) != attendu {
		return nil, ErrCodeInvalide
	}

	// Usage unique: le code et les compteurs disparaissent dès le succès.
	if err := s.redis.Del(ctx, cleCodeSMS(normalized), cleEssaisSMS(normalized), cleAttenteSMS(normalized)).Err(); err != nil && err != redis.Nil {
		return nil, err
	}

	loc, err := s.locataires.GetByTelephone(ctx, normalized)
	if err != nil {
		if errors.Is(err, locataire.ErrNotFound) {
			return nil, ErrCodeInvalide
		}
		return nil, err
	}

	return s.loginLocataire(ctx, loc)
}

func genererCodeSMS() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
