package compte

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gestimmo/api/internal/auth"
	"github.com/gestimmo/api/internal/permission"
	"github.com/gestimmo/api/internal/util"
)

// Repo est la surface de persistance consommée par le service.
type Repo interface {
	CreateUtilisateur(ctx context.Context, u *Utilisateur, affectations []Affectation) (*Utilisateur, error)
	GetByEmail(ctx context.Context, email string) (*Utilisateur, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Utilisateur, error)
	List(ctx context.Context) ([]Utilisateur, error)
	Update(ctx context.Context, id uuid.UUID, nom, prenom, role string, actif bool) (*Utilisateur, error)
	UpdateMotDePasse(ctx context.Context, id uuid.UUID, hash string) error
	TouchDernierAcces(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	ReplaceAffectations(ctx context.Context, utilisateurID uuid.UUID, affectations []Affectation) error
	ListAffectations(ctx context.Context, utilisateurID uuid.UUID) ([]Affectation, error)
	ChargerContexte(ctx context.Context, utilisateurID uuid.UUID) (*permission.Contexte, error)
	CreateInvitation(ctx context.Context, inv *Invitation) (*Invitation, error)
	ListInvitations(ctx context.Context) ([]Invitation, error)
	ConsommerInvitation(ctx context.Context, tokenHash string, u *Utilisateur) (*Utilisateur, error)
}

// Mailer envoie les e-mails transactionnels.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type Service struct {
	repo          Repo
	mailer        Mailer
	appURL        string
	invitationTTL time.Duration
}

func NewService(repo Repo, mailer Mailer, appURL string, invitationTTL time.Duration) *Service {
	return &Service{repo: repo, mailer: mailer, appURL: appURL, invitationTTL: invitationTTL}
}

// CreateUtilisateur crée un compte directement, sans invitation.
func (s *Service) CreateUtilisateur(ctx context.Context, input CreateUtilisateurInput) (*Utilisateur, error) {
	if err := util.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := util.ValidatePassword(input.MotDePasse); err != nil {
		return nil, err
	}
	if !RoleValide(input.Role) {
		return nil, fmt.Errorf("rôle invalide: %s", input.Role)
	}

	hash, err := auth.Hash(input.MotDePasse)
	if err != nil {
		return nil, err
	}

	return s.repo.CreateUtilisateur(ctx, &Utilisateur{
		Nom:            input.Nom,
		Prenom:         input.Prenom,
		Email:          input.Email,
		MotDePasseHash: hash,
		Role:           input.Role,
	}, input.Affectations)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Utilisateur, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*Utilisateur, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context) ([]Utilisateur, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, nom, prenom, role string, actif bool) (*Utilisateur, error) {
	if !RoleValide(role) {
		return nil, fmt.Errorf("rôle invalide: %s", role)
	}
	return s.repo.Update(ctx, id, nom, prenom, role, actif)
}

func (s *Service) ChangerMotDePasse(ctx context.Context, id uuid.UUID, motDePasse string) error {
	if err := util.ValidatePassword(motDePasse); err != nil {
		return err
	}
	hash, err := auth.Hash(motDePasse)
	if err != nil {
		return err
	}
	return s.repo.UpdateMotDePasse(ctx, id, hash)
}

func (s *Service) TouchDernierAcces(ctx context.Context, id uuid.UUID) error {
	return s.repo.TouchDernierAcces(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ModifierAffectations(ctx context.Context, utilisateurID uuid.UUID, affectations []Affectation) error {
	return s.repo.ReplaceAffectations(ctx, utilisateurID, affectations)
}

func (s *Service) Affectations(ctx context.Context, utilisateurID uuid.UUID) ([]Affectation, error) {
	return s.repo.ListAffectations(ctx, utilisateurID)
}

// ChargerContexte satisfait middleware.ContexteLoader.
func (s *Service) ChargerContexte(ctx context.Context, utilisateurID uuid.UUID) (*permission.Contexte, error) {
	return s.repo.ChargerContexte(ctx, utilisateurID)
}

// Inviter crée l'invitation et envoie le lien par e-mail. Le jeton en
// clair ne quitte jamais le serveur autrement que dans l'e-mail.
func (s *Service) Inviter(ctx context.Context, input InviterInput) (*Invitation, error) {
	if err := util.ValidateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := util.RequireString(input.Nom, "nom"); err != nil {
		return nil, err
	}
	if !RoleValide(input.Role) {
		return nil, fmt.Errorf("rôle invalide: %s", input.Role)
	}
	var telephone *string
	if input.Telephone != nil && *input.Telephone != "" {
		normalise, err := util.FormatTelephone(*input.Telephone)
		if err != nil {
			return nil, err
		}
		telephone = &normalise
	}

	raw, hash, err := auth.GenerateToken()
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.CreateInvitation(ctx, &Invitation{
		Email:        input.Email,
		Nom:          input.Nom,
		Prenom:       input.Prenom,
		Telephone:    telephone,
		Role:         input.Role,
		Affectations: input.Affectations,
		TokenHash:    hash,
		CreeParID:    input.CreeParID,
		ExpireLe:     time.Now().UTC().Add(s.invitationTTL),
	})
	if err != nil {
		return nil, err
	}

	lien := fmt.Sprintf("%s/invitation/%s", s.appURL, raw)
	corps := fmt.Sprintf(
		"<p>Vous êtes invité à rejoindre le backoffice GestImmo en tant que %s.</p>"+
			"<p><a href=%q>Accepter l'invitation</a> (valide jusqu'au %s)</p>",
		inv.Role, lien, inv.ExpireLe.Format("02/01/2006"))

	if err := s.mailer.Send(ctx, inv.Email, "Invitation GestImmo", corps); err != nil {
		// L'invitation reste valable, le lien peut être renvoyé.
		log.Error().Err(err).Str("email", inv.Email).Msg("envoi de l'invitation échoué")
	}
	return inv, nil
}

func (s *Service) ListInvitations(ctx context.Context) ([]Invitation, error) {
	return s.repo.ListInvitations(ctx)
}

// AccepterInvitation consomme le jeton et crée le compte. L'identité,
// l'e-mail et le rôle proviennent de l'invitation, jamais du client.
func (s *Service) AccepterInvitation(ctx context.Context, input AccepterInput) (*Utilisateur, error) {
	if input.Token == "" {
		return nil, ErrInvitationInvalide
	}
	if err := util.ValidatePassword(input.MotDePasse); err != nil {
		return nil, err
	}

	hash, err := auth.Hash(input.MotDePasse)
	if err != nil {
		return nil, err
	}

	return s.repo.ConsommerInvitation(ctx, auth.HashToken(input.Token), &Utilisateur{
		MotDePasseHash: hash,
	})
}
