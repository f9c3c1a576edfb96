package models

import (
	"testing"

	"github.com/google/uuid"
)

func participantsFixture() (ChatThread, uuid.UUID, uuid.UUID) {
	clientUser := uuid.New()
	freelancerUser := uuid.New()
	thread := ChatThread{
		ID:           1,
		ClientID:     10,
		FreelancerID: 20,
		Client:       &ClientProfile{ID: 10, UserID: clientUser},
		Freelancer:   &FreelancerProfile{ID: 20, UserID: freelancerUser},
	}
	return thread, clientUser, freelancerUser
}

func TestIsParticipant(t *testing.T) {
	thread, clientUser, freelancerUser := participantsFixture()

	if !thread.IsParticipant(clientUser) {
		t.Error("client user should be a participant")
	}
	if !thread.IsParticipant(freelancerUser) {
		t.Error("freelancer user should be a participant")
	}
	if thread.IsParticipant(uuid.New()) {
		t.Error("stranger should not be a participant")
	}
}

func TestIsParticipantWithoutPreloads(t *testing.T) {
	thread := ChatThread{ID: 1, ClientID: 10, FreelancerID: 20}
	if thread.IsParticipant(uuid.New()) {
		t.Error("thread without preloaded profiles should deny everyone")
	}
}

func TestOtherParticipantUserID(t *testing.T) {
	thread, clientUser, freelancerUser := participantsFixture()

	if got := thread.OtherParticipantUserID(clientUser); got != freelancerUser {
		t.Errorf("other of client = %s, want freelancer", got)
	}
	if got := thread.OtherParticipantUserID(freelancerUser); got != clientUser {
		t.Errorf("other of freelancer = %s, want client", got)
	}
	if got := thread.OtherParticipantUserID(uuid.New()); got != uuid.Nil {
		t.Errorf("other of stranger = %s, want Nil", got)
	}
}
