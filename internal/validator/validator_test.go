package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoomRequestRules(t *testing.T) {
	Setup()

	valid := model.CreateRoomRequest{CandidateName: "Ada Lovelace", Topic: "C++ / Go", Difficulty: "easy"}
	err := binding.Validator.ValidateStruct(&valid)
	require.Error(t, err, "slash is not allowed in topics")

	valid.Topic = "C++ and Go"
	require.NoError(t, binding.Validator.ValidateStruct(&valid))

	bad := model.CreateRoomRequest{CandidateName: "Ada\nLovelace", Topic: "go", Difficulty: "extreme", QuestionCount: 50}
	fields := TranslateErrors(binding.Validator.ValidateStruct(&bad))
	assert.Equal(t, "candidate_name must not contain control characters", fields["candidate_name"])
	assert.Contains(t, fields, "difficulty")
	assert.Contains(t, fields, "question_count")
	assert.NotContains(t, fields, "topic")
}
