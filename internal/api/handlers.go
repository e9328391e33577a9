package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

type vaaRequest struct {
	VAABytes string `json:"vaaBytes" binding:"required"`
}

type verifyResponse struct {
	Success          bool   `json:"success"`
	MessageID        string `json:"messageId,omitempty"`
	Digest           string `json:"digest,omitempty"`
	GuardianSetIndex uint32 `json:"guardianSetIndex,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             uint32 `json:"code,omitempty"`
	Codespace        string `json:"codespace,omitempty"`
}

type governanceResponse struct {
	Module     string            `json:"module"`
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type submitResponse struct {
	MessageID  string              `json:"messageId"`
	Digest     string              `json:"digest"`
	Replayed   bool                `json:"replayed"`
	Governance *governanceResponse `json:"governance,omitempty"`
}

type observationRequest struct {
	// Observation is the hex wire encoding of a signed observation.
	Observation string `json:"observation" binding:"required"`
}

type observationResponse struct {
	MessageID  string `json:"messageId"`
	Status     string `json:"status"`
	Signatures int    `json:"signatures,omitempty"`
	Quorum     int    `json:"quorum,omitempty"`
	Digest     string `json:"digest,omitempty"`
	// Encoded is the wire encoding of the status, for guardians that relay it.
	Encoded string `json:"encoded"`
}

type committedResponse struct {
	MessageID        string `json:"messageId"`
	Digest           string `json:"digest"`
	GuardianSetIndex uint32 `json:"guardianSetIndex"`
	CommittedAt      uint32 `json:"committedAt"`
	Timestamp        uint32 `json:"timestamp"`
	Nonce            uint32 `json:"nonce"`
	ConsistencyLevel uint8  `json:"consistencyLevel"`
	Payload          string `json:"payload"`
}

type bucketResponse struct {
	GuardianSetIndex uint32 `json:"guardianSetIndex"`
	Digest           string `json:"digest"`
	TxHash           string `json:"txHash"`
	Signers          []uint `json:"signers"`
	Count            int    `json:"count"`
	Quorum           int    `json:"quorum"`
}

type pendingResponse struct {
	MessageID string           `json:"messageId"`
	Buckets   []bucketResponse `json:"buckets"`
}

type guardianSetResponse struct {
	Index          uint32   `json:"index"`
	Keys           []string `json:"keys"`
	Quorum         int      `json:"quorum"`
	CreationTime   uint32   `json:"creationTime"`
	ExpirationTime uint32   `json:"expirationTime"`
}

type emitterResponse struct {
	Chain   uint16 `json:"chain"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if _, err := s.core.CurrentGuardianSet(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleVerify(c *gin.Context) {
	raw, ok := bindVAA(c)
	if !ok {
		return
	}
	parsed, err := s.core.VerifyVAA(c.Request.Context(), raw, s.core.Now())
	if err != nil {
		status, e := statusOf(err)
		c.JSON(status, verifyResponse{Error: e.Message, Code: e.Code, Codespace: e.Codespace})
		return
	}
	c.JSON(http.StatusOK, verifyResponse{
		Success:          true,
		MessageID:        parsed.ID.String(),
		Digest:           hex.EncodeToString(parsed.Digest[:]),
		GuardianSetIndex: parsed.GuardianSetIndex,
	})
}

func (s *Server) handleSubmitVAA(c *gin.Context) {
	raw, ok := bindVAA(c)
	if !ok {
		return
	}
	res, err := s.core.SubmitVAA(c.Request.Context(), raw, s.core.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	out := submitResponse{
		MessageID: res.VAA.ID.String(),
		Digest:    hex.EncodeToString(res.VAA.Digest[:]),
		Replayed:  res.Replayed,
	}
	if g := res.Governance; g != nil {
		out.Governance = &governanceResponse{Module: g.Module, Action: g.Action, Attributes: g.Attributes}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSubmitObservation(c *gin.Context) {
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return
	}
	raw, err := decodeHex(req.Observation)
	if err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, "invalid observation encoding")
		return
	}
	obs, err := observation.UnmarshalSignedObservation(raw)
	if err != nil {
		writeError(c, err)
		return
	}
	sub, err := obs.Submission()
	if err != nil {
		writeError(c, err)
		return
	}

	st, err := s.core.SubmitObservation(c.Request.Context(), sub)
	if err != nil {
		s.logger.Debug("Observation rejected", zap.Stringer("message_id", sub.ID), zap.Error(err))
		writeError(c, err)
		return
	}
	out, err := renderStatus(sub.ID, st)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func renderStatus(id vaa.MessageID, st observation.Status) (observationResponse, error) {
	encoded, err := observation.EncodeStatus(st)
	if err != nil {
		return observationResponse{}, fmt.Errorf("encode status: %w", err)
	}
	out := observationResponse{MessageID: id.String(), Encoded: hex.EncodeToString(encoded)}
	switch st := st.(type) {
	case observation.StatusPending:
		out.Status = "pending"
		out.Signatures = int(st.Signatures)
		out.Quorum = int(st.Quorum)
	case observation.StatusCommitted:
		out.Status = "committed"
		out.Digest = hex.EncodeToString(st.Digest[:])
	case observation.StatusError:
		out.Status = "error"
	}
	return out, nil
}

func (s *Server) handleCommitted(c *gin.Context) {
	id, ok := bindMessageID(c)
	if !ok {
		return
	}
	msg, found, err := s.core.QueryCommitted(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		writeAPIError(c, http.StatusNotFound, codeNotFound, fmt.Sprintf("message %s is not committed", id))
		return
	}
	c.JSON(http.StatusOK, committedResponse{
		MessageID:        id.String(),
		Digest:           hex.EncodeToString(msg.Digest[:]),
		GuardianSetIndex: msg.GuardianSetIndex,
		CommittedAt:      msg.CommittedAt,
		Timestamp:        msg.Body.Timestamp,
		Nonce:            msg.Body.Nonce,
		ConsistencyLevel: msg.Body.ConsistencyLevel,
		Payload:          hex.EncodeToString(msg.Body.Payload),
	})
}

func (s *Server) handlePending(c *gin.Context) {
	id, ok := bindMessageID(c)
	if !ok {
		return
	}
	buckets, err := s.core.QueryPending(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := pendingResponse{MessageID: id.String(), Buckets: make([]bucketResponse, 0, len(buckets))}
	for _, b := range buckets {
		var signers []uint
		for i, ok := b.Signers.NextSet(0); ok; i, ok = b.Signers.NextSet(i + 1) {
			signers = append(signers, i)
		}
		out.Buckets = append(out.Buckets, bucketResponse{
			GuardianSetIndex: b.GuardianSetIndex,
			Digest:           hex.EncodeToString(b.Digest[:]),
			TxHash:           hex.EncodeToString(b.TxHash[:]),
			Signers:          signers,
			Count:            b.Count,
			Quorum:           b.Quorum,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCurrentGuardianSet(c *gin.Context) {
	set, err := s.core.CurrentGuardianSet(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderGuardianSet(set))
}

func (s *Server) handleGuardianSet(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 32)
	if err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, "invalid guardian set index")
		return
	}
	set, err := s.core.GuardianSet(c.Request.Context(), uint32(index))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderGuardianSet(set))
}

func renderGuardianSet(set *guardianset.GuardianSet) guardianSetResponse {
	keys := make([]string, len(set.Keys))
	for i, k := range set.Keys {
		keys[i] = k.Hex()
	}
	return guardianSetResponse{
		Index:          set.Index,
		Keys:           keys,
		Quorum:         set.Quorum(),
		CreationTime:   set.CreationTime,
		ExpirationTime: set.ExpirationTime,
	}
}

func (s *Server) handleEmitter(c *gin.Context) {
	chain, err := vaa.ParseChainID(c.Param("chain"))
	if err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	addr, found, err := s.core.Emitter(c.Request.Context(), chain)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		writeAPIError(c, http.StatusNotFound, codeNotFound, fmt.Sprintf("no emitter registered for chain %d", chain))
		return
	}
	c.JSON(http.StatusOK, emitterResponse{Chain: uint16(chain), Name: chain.String(), Address: addr.String()})
}

func bindVAA(c *gin.Context) ([]byte, bool) {
	var req vaaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, "invalid json")
		return nil, false
	}
	raw, err := decodeHex(req.VAABytes)
	if err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, "invalid vaaBytes encoding")
		return nil, false
	}
	return raw, true
}

func bindMessageID(c *gin.Context) (vaa.MessageID, bool) {
	id, err := vaa.NewMessageID(c.Param("chain"), c.Param("emitter"), c.Param("sequence"))
	if err != nil {
		writeAPIError(c, http.StatusBadRequest, codeBadRequest, err.Error())
		return vaa.MessageID{}, false
	}
	return id, true
}

// decodeHex accepts hex with or without a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty input")
	}
	return b, nil
}
