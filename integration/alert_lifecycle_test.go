package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"signalcraft-go/internal/broadcast"
	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/escalation"
	"signalcraft-go/internal/grouping"
	"signalcraft-go/internal/notify"
	"signalcraft-go/internal/pipeline"
	queuemem "signalcraft-go/internal/queue/memory"
	"signalcraft-go/internal/rules"
	"signalcraft-go/internal/store/memory"
)

const workspaceID = "ws-integration"

var _ = Describe("Alert Lifecycle Integration", func() {
	var (
		ctx         context.Context
		groups      *memory.GroupRepository
		events      *memory.EventRepository
		ruleRepo    *memory.RuleRepository
		index       *memory.EscalationIndex
		jobQueue    *queuemem.Queue
		recorder    *broadcast.Recorder
		engine      *rules.Engine
		notifier    *notify.Notifier
		scheduler   *escalation.Scheduler
		groupSvc    *grouping.Service
		pipelineSvc *pipeline.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		groups = memory.NewGroupRepository()
		events = memory.NewEventRepository()
		ruleRepo = memory.NewRuleRepository()
		index = memory.NewEscalationIndex()
		jobQueue = queuemem.NewQueue()
		recorder = broadcast.NewRecorder()

		engine = rules.NewEngine(ruleRepo, 0, logger)
		notifier = notify.NewNotifier(jobQueue)
		scheduler = escalation.NewScheduler(jobQueue, index, groups, logger)
		groupSvc = grouping.NewService(groups, events, scheduler, recorder, false, logger)
		pipelineSvc = pipeline.NewService(
			groupSvc, events, engine, notifier, scheduler, recorder, "C-default", logger)
	})

	sentryPayload := func(eventID, level string) []byte {
		return []byte(fmt.Sprintf(`{
			"event": {
				"event_id": %q,
				"title": "ConnectionError: database timeout",
				"level": %q,
				"environment": "production",
				"fingerprint": ["db", "timeout"]
			},
			"project": "checkout"
		}`, eventID, level))
	}

	Context("When an alert arrives with no routing rules configured", func() {
		It("should create an open group and route to the fallback channel", func() {
			result, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-1", "error"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Duplicate).To(BeFalse())
			Expect(result.GroupID).NotTo(BeEmpty())
			Expect(result.RulesMatched).To(Equal(0))
			Expect(result.NotificationsQueued).To(Equal(1))

			group, err := groups.GetByID(ctx, workspaceID, result.GroupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Status).To(Equal(domain.GroupStatusOpen))
			Expect(group.Severity).To(Equal(domain.SeverityHigh))
			Expect(group.Fingerprint).To(Equal("db|timeout"))
			Expect(group.Count).To(Equal(1))

			Expect(jobQueue.Len(notify.QueueName)).To(Equal(1))
			Expect(jobQueue.Len(escalation.QueueName)).To(Equal(0))

			emitted := recorder.Events()
			Expect(emitted).To(HaveLen(1))
			Expect(emitted[0].Event).To(Equal(broadcast.EventAlertCreated))
		})
	})

	Context("When the same problem fires repeatedly", func() {
		It("should fold occurrences into one group and reject exact duplicates", func() {
			first, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-1", "error"))
			Expect(err).NotTo(HaveOccurred())

			second, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-2", "error"))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.GroupID).To(Equal(first.GroupID))

			group, err := groups.GetByID(ctx, workspaceID, first.GroupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Count).To(Equal(2))

			// Re-delivery of an already-seen source event is a no-op.
			dup, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-2", "error"))
			Expect(err).NotTo(HaveOccurred())
			Expect(dup.Duplicate).To(BeTrue())

			group, err = groups.GetByID(ctx, workspaceID, first.GroupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Count).To(Equal(2))
		})
	})

	Context("When a routing rule with escalation matches", func() {
		BeforeEach(func() {
			err := ruleRepo.Create(ctx, &domain.RoutingRule{
				WorkspaceID: workspaceID,
				Name:        "prod high severity to on-call",
				Priority:    1,
				Enabled:     true,
				Conditions: domain.ConditionGroup{
					All: []domain.Condition{
						{Field: "environment", Operator: domain.OperatorEquals, Value: "production"},
						{Field: "severity", Operator: domain.OperatorGreaterThanOrEquals, Value: "high"},
					},
				},
				Actions: domain.RuleActions{
					ChannelID:            "C-oncall",
					MentionHere:          true,
					EscalateAfterMinutes: 15,
					EscalationChannelID:  "C-incident",
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should notify the rule channel and schedule an escalation check", func() {
			result, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-1", "error"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RulesEvaluated).To(Equal(1))
			Expect(result.RulesMatched).To(Equal(1))
			Expect(result.NotificationsQueued).To(Equal(1))
			Expect(result.EscalationsScheduled).To(Equal(1))

			Expect(jobQueue.Len(escalation.QueueName)).To(Equal(1))

			jobID, err := index.Get(ctx, workspaceID, result.GroupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).NotTo(BeEmpty())

			job, err := jobQueue.Find(ctx, escalation.QueueName, jobID)
			Expect(err).NotTo(HaveOccurred())
			var esc domain.EscalationJob
			Expect(json.Unmarshal(job.Payload, &esc)).To(Succeed())
			Expect(esc.EscalationLevel).To(Equal(1))
			Expect(esc.ChannelID).To(Equal("C-incident"))
		})

		It("should cancel the pending escalation when the group is acknowledged", func() {
			result, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-1", "error"))
			Expect(err).NotTo(HaveOccurred())
			Expect(jobQueue.Len(escalation.QueueName)).To(Equal(1))

			group, err := groupSvc.Acknowledge(ctx, workspaceID, result.GroupID, "user-7")
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Status).To(Equal(domain.GroupStatusAck))

			Expect(jobQueue.Len(escalation.QueueName)).To(Equal(0))
			jobID, err := index.Get(ctx, workspaceID, result.GroupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(jobID).To(BeEmpty())
		})

		It("should not match alerts below the severity threshold", func() {
			result, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-1", "info"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RulesMatched).To(Equal(0))
			// Fallback notification instead.
			Expect(result.NotificationsQueued).To(Equal(1))
			Expect(jobQueue.Len(escalation.QueueName)).To(Equal(0))
		})
	})

	Context("When a recovery signal arrives", func() {
		It("should resolve the live group without routing", func() {
			alarm, err := pipelineSvc.Process(ctx, workspaceID, "aws-cloudwatch", []byte(`{
				"AlarmName": "cpu-high",
				"NewStateValue": "ALARM",
				"MessageId": "msg-1",
				"Trigger": {"Namespace": "AWS/EC2"}
			}`))
			Expect(err).NotTo(HaveOccurred())
			queuedBefore := jobQueue.Len(notify.QueueName)

			result, err := pipelineSvc.Process(ctx, workspaceID, "aws-cloudwatch", []byte(`{
				"AlarmName": "cpu-high",
				"NewStateValue": "OK",
				"MessageId": "msg-2"
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Resolved).To(BeTrue())
			Expect(result.GroupID).To(Equal(alarm.GroupID))

			group, err := groups.GetByID(ctx, workspaceID, alarm.GroupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Status).To(Equal(domain.GroupStatusResolved))
			Expect(group.ResolvedAt).NotTo(BeNil())

			// Recovery never queues notifications.
			Expect(jobQueue.Len(notify.QueueName)).To(Equal(queuedBefore))
		})
	})

	Context("When a notification worker is running", func() {
		It("should deliver queued notifications through the sender", func() {
			workerCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			sent := make(chan *notify.Payload, 4)
			worker := notify.NewWorker(jobQueue, senderFunc(func(ctx context.Context, p *notify.Payload) error {
				sent <- p
				return nil
			}), slog.New(slog.NewTextHandler(io.Discard, nil)))

			go func() {
				defer GinkgoRecover()
				_ = worker.Run(workerCtx)
			}()

			_, err := pipelineSvc.Process(ctx, workspaceID, "sentry", sentryPayload("evt-1", "error"))
			Expect(err).NotTo(HaveOccurred())

			var payload *notify.Payload
			Eventually(sent, 2*time.Second).Should(Receive(&payload))
			Expect(payload.Kind).To(Equal(notify.KindFallback))
			Expect(payload.ChannelID).To(Equal("C-default"))
			Expect(payload.Severity).To(Equal(domain.SeverityHigh))
		})
	})
})

// senderFunc adapts a function to the notify.Sender interface.
type senderFunc func(ctx context.Context, payload *notify.Payload) error

func (f senderFunc) Send(ctx context.Context, payload *notify.Payload) error {
	return f(ctx, payload)
}
